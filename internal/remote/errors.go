package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/dexpositosanchez/fyntra/internal/config"
)

// APIError represents a non-2xx response from the Fyntra API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error"`
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// errorBody covers the error shapes the API returns
type errorBody struct {
	Message string `json:"message"`
	Detail  any    `json:"detail"`
	Error   string `json:"error"`
}

func (b errorBody) message() string {
	if b.Message != "" {
		return b.Message
	}
	switch d := b.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}

// ErrorType classifies a failed remote call
type ErrorType string

const (
	// ErrorTypeNetwork covers timeouts, DNS and refused connections
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeAuth covers 401/403 and a missing token
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeServer covers 5xx responses
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient covers other 4xx responses
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeUnknown is anything else
	ErrorTypeUnknown ErrorType = "unknown"
)

// ClassifyError maps an error returned by the client to an ErrorType
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, config.ErrNoToken) {
		return ErrorTypeAuth
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ErrorTypeAuth
		case apiErr.StatusCode >= 500:
			return ErrorTypeServer
		case apiErr.StatusCode >= 400:
			return ErrorTypeClient
		default:
			return ErrorTypeUnknown
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
