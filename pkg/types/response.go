// Package types holds the wire shapes shared by every API response.
package types

// SuccessEnvelope wraps every 2xx payload so terminal clients can rely on
// a single top-level key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error body. Code is a stable machine
// string (UNAUTHORIZED, PENDING_APPROVAL, ...), Message stays generic so
// auth failures do not leak account state.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx payload.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
