package response

import (
	"encoding/json"
	"net/http"

	pkgErrors "github.com/vogiaan1904/clinic-queueboard/pkg/errors"
)

type Resp struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Errors    any    `json:"errors,omitempty"`
}

func parseHttpError(err error) (int, Resp) {
	switch parsedErr := err.(type) {
	case *pkgErrors.HTTPError:
		statusCode := parsedErr.StatusCode
		if statusCode == 0 {
			statusCode = http.StatusBadRequest
		}

		return statusCode, Resp{
			ErrorCode: parsedErr.Code,
			Message:   parsedErr.Message,
		}
	default:
		return http.StatusInternalServerError, Resp{
			ErrorCode: 500,
			Message:   "Internal server error",
		}
	}
}

// OK writes data wrapped in a success envelope.
func OK(w http.ResponseWriter, data any) error {
	return JSON(w, http.StatusOK, Resp{Message: "Success", Data: data})
}

// Error writes err as an error envelope. Errors that are not *HTTPError become a 500.
func Error(w http.ResponseWriter, err error) error {
	statusCode, resp := parseHttpError(err)
	return JSON(w, statusCode, resp)
}

func JSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
