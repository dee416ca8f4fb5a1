package errors

import "net/http"

// HTTPError is an error with a stable code and the status it maps to.
type HTTPError struct {
	Code       int
	Message    string
	StatusCode int
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

func (e *HTTPError) WithStatus(statusCode int) *HTTPError {
	c := *e
	c.StatusCode = statusCode
	return &c
}

func (e HTTPError) Error() string {
	return e.Message
}

var (
	ErrBoardNotReady   = NewHTTPError(50301, "Board is not ready").WithStatus(http.StatusServiceUnavailable)
	ErrBoardDisposed   = NewHTTPError(50302, "Board has been stopped").WithStatus(http.StatusServiceUnavailable)
	ErrRequestTimedOut = NewHTTPError(50401, "Board did not answer in time").WithStatus(http.StatusGatewayTimeout)
)
