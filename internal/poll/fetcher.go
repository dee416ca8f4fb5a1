package poll

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vogiaan1904/clinic-queueboard/internal/domain"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
)

const maxBodyBytes = 1 << 20

// HTTPFetcher reads the read-only snapshot endpoints.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher builds a client with no timeout unless one is given; a stalled
// request only delays that poller's next fetch.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (f *HTTPFetcher) Stats(department, date string) FetchFunc[models.QueueSnapshot] {
	return func(ctx context.Context) (models.QueueSnapshot, error) {
		body, err := f.get(ctx, "/queue/stats", url.Values{"department": {department}, "date": {date}})
		if err != nil {
			return models.QueueSnapshot{}, err
		}
		return domain.DecodeSnapshot(body)
	}
}

func (f *HTTPFetcher) BoardState(boardID string) FetchFunc[models.BoardState] {
	return func(ctx context.Context) (models.BoardState, error) {
		body, err := f.get(ctx, "/board/state", url.Values{"board_id": {boardID}})
		if err != nil {
			return models.BoardState{}, err
		}
		return domain.DecodeBoardState(body)
	}
}

func (f *HTTPFetcher) Windows(boardID string) FetchFunc[[]models.Window] {
	return func(ctx context.Context) ([]models.Window, error) {
		body, err := f.get(ctx, "/board/windows", url.Values{"board_id": {boardID}})
		if err != nil {
			return nil, err
		}
		return domain.DecodeWindows(body)
	}
}

func (f *HTTPFetcher) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	return body, nil
}
