package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"kitchen-display/internal/kds/app/core"
)

// jsonResponse writes data as JSON with the specified HTTP status code.
func jsonResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes an error response as JSON with the specified HTTP status code.
func jsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": err.Error(),
		"code":  code,
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrOrderNotFound), errors.Is(err, core.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrEmptyOrder),
		errors.Is(err, core.ErrPaymentMethod):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDrainInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("failed to parse JSON")
	}
	return nil
}
