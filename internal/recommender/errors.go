package recommender

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spigell/shl-recommender/internal/catalog"
	"github.com/spigell/shl-recommender/internal/index"
)

// Code is a stable, machine readable error kind returned to callers.
type Code string

const (
	CodeInvalidQuery      Code = "invalid_query"
	CodeCatalogMissing    Code = "catalog_missing"
	CodeEmbeddingProvider Code = "embedding_provider_error"
	CodeProviderTimeout   Code = "provider_timeout"
	CodeIndexCorrupt      Code = "index_corrupt"
	CodeEnhancement       Code = "enhancement_error"
	CodeInternal          Code = "internal"
)

// HTTPStatus maps the code to a response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidQuery:
		return http.StatusBadRequest
	case CodeProviderTimeout:
		return http.StatusGatewayTimeout
	case CodeEmbeddingProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by every Engine operation.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the code from err, CodeInternal when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// classify picks a code for err, using fallback when nothing more specific applies.
func classify(op string, err error, fallback Code) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeProviderTimeout, op, err)
	case errors.Is(err, catalog.ErrMissing):
		return newError(CodeCatalogMissing, op, err)
	case errors.Is(err, index.ErrCorrupt):
		return newError(CodeIndexCorrupt, op, err)
	default:
		return newError(fallback, op, err)
	}
}
