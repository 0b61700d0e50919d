package coingecko

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure taxonomy for the price API. Only ErrRateLimited is retried inside
// the client; everything else is returned to the caller immediately.
var (
	ErrBadRequest         = errors.New("coingecko: bad request")
	ErrUnauthorized       = errors.New("coingecko: unauthorized")
	ErrForbidden          = errors.New("coingecko: forbidden")
	ErrRateLimited        = errors.New("coingecko: rate limited")
	ErrServerError        = errors.New("coingecko: server error")
	ErrServiceUnavailable = errors.New("coingecko: service unavailable")
	ErrUnrecognized       = errors.New("coingecko: unrecognized response")
)

func statusError(code int, body []byte) error {
	var base error
	switch code {
	case http.StatusBadRequest:
		base = ErrBadRequest
	case http.StatusUnauthorized:
		base = ErrUnauthorized
	case http.StatusForbidden:
		base = ErrForbidden
	case http.StatusTooManyRequests:
		base = ErrRateLimited
	case http.StatusInternalServerError:
		base = ErrServerError
	case http.StatusServiceUnavailable:
		base = ErrServiceUnavailable
	default:
		base = ErrUnrecognized
	}
	snippet := body
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Errorf("%w: status %d: %s", base, code, snippet)
}
