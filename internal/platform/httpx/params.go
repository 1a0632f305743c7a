package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrValidation, name)
	}
	return id, nil
}

// Confirmation is the body of destructive requests.
type Confirmation struct {
	Confirm bool `json:"confirm"`
}

// DecodeConfirmation reads a Confirmation. An empty body counts as unconfirmed.
func DecodeConfirmation(r *http.Request) (bool, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return false, nil
	}
	var c Confirmation
	if err := DecodeJSON(r, &c); err != nil {
		return false, err
	}
	return c.Confirm, nil
}
