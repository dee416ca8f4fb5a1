package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/clinic-queueboard/internal/display"
	queueErrors "github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/queue"
	"github.com/vogiaan1904/clinic-queueboard/internal/service"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	"github.com/vogiaan1904/clinic-queueboard/pkg/response"
)

type stubBoard struct {
	board queue.Board
	err   error
	conn  models.ConnectionState
}

func (s *stubBoard) Start(context.Context) error                { return nil }
func (s *stubBoard) Stop()                                      {}
func (s *stubBoard) Submit(models.Envelope) error               { return nil }
func (s *stubBoard) Board(context.Context) (queue.Board, error) { return s.board, s.err }
func (s *stubBoard) Connection() models.ConnectionState         { return s.conn }
func (s *stubBoard) Topic() string                              { return "Derma+2025-01-10" }

func newTestServer(board *stubBoard) (*httptest.Server, *display.Presenter) {
	p := display.NewPresenter(board.Topic(), display.NamePolicyInitials, 5, nil)
	h := NewHTTPHandler(board, p, logger.InitializeTestZapLogger())
	return httptest.NewServer(h.Routes()), p
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(&stubBoard{conn: models.ConnectionState{State: models.ChannelReconnecting, Attempt: 2}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status     string                 `json:"status"`
		Topic      string                 `json:"topic"`
		Connection models.ConnectionState `json:"connection"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, 2, body.Connection.Attempt)
}

func TestGetView(t *testing.T) {
	srv, p := newTestServer(&stubBoard{})
	defer srv.Close()

	name := "Karimova Dilnoza"
	e := models.QueueEntry{Number: 12, Status: models.EntryStatusCalled, PatientDisplayName: &name}
	p.HandleChanges(context.Background(), []models.Change{{Kind: models.ChangeCallStarted, Entry: &e}})

	resp, err := http.Get(srv.URL + "/api/board")
	require.NoError(t, err)
	defer resp.Body.Close()

	var view display.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.NotNil(t, view.CurrentCall)
	assert.Equal(t, 12, view.CurrentCall.Number)
	assert.Equal(t, "Karimova D.", view.CurrentCall.Name)
}

func TestGetBoardStateErrors(t *testing.T) {
	tcs := map[string]struct {
		err        error
		wantStatus int
		wantCode   int
	}{
		"not started": {err: service.ErrBoardNotStarted, wantStatus: http.StatusServiceUnavailable, wantCode: 50301},
		"disposed":    {err: queueErrors.ErrManagerDisposed, wantStatus: http.StatusServiceUnavailable, wantCode: 50302},
		"timeout":     {err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout, wantCode: 50401},
		"unknown":     {err: assert.AnError, wantStatus: http.StatusInternalServerError, wantCode: 500},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(&stubBoard{err: tc.err})
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/api/board/state")
			require.NoError(t, err)
			defer resp.Body.Close()

			var body response.Resp
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantCode, body.ErrorCode)
		})
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(&stubBoard{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var vars map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vars))
	assert.Contains(t, vars, "memstats")
}
