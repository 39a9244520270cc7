package ipc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

// decodeBody reads a single JSON value of type T from the request body.
// Failures come back coded so HTTPStatus picks 400 or 413.
func decodeBody[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, *bcerrors.Error) {
	var dst T
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return dst, bcerrors.New(bcerrors.ErrCodeInvalidRequest, "request body required")
	}
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	err := json.NewDecoder(body).Decode(&dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return dst, nil
	case errors.Is(err, io.EOF):
		return dst, bcerrors.New(bcerrors.ErrCodeInvalidRequest, "request body required")
	case errors.As(err, &tooLarge):
		return dst, bcerrors.New(bcerrors.ErrCodeBodyTooLarge, "request body too large").
			WithContext("max_bytes", tooLarge.Limit)
	default:
		return dst, bcerrors.Wrap(err, bcerrors.ErrCodeInvalidRequest, "invalid request body")
	}
}
