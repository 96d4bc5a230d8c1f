// Package fmerr defines the closed error taxonomy shared by the script
// clients. Every failure a client can produce is either one of the structured
// error types below or an E wrapping an underlying transport/codec error
// with a machine-readable kind.
//
// Nothing in this layer retries; callers decide what to do with each kind.
package fmerr

import "fmt"

// Kind is a machine-readable error category.
type Kind string

const (
	// InvalidConnectionURL indicates a malformed or incomplete connection URL.
	InvalidConnectionURL Kind = "invalid_connection_url"
	// TransportFailed indicates the HTTP request itself failed.
	TransportFailed Kind = "transport_failed"
	// CodecFailed indicates a JSON (de)serialization failure.
	CodecFailed Kind = "codec_failed"
	// MissingAccessToken indicates authentication succeeded at the HTTP level
	// but the server returned no usable session token.
	MissingAccessToken Kind = "missing_access_token"
	// MissingScriptResult indicates a result was decoded where none is present.
	MissingScriptResult Kind = "missing_script_result"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Sentinels for failures that carry no further detail.
var (
	ErrMissingAccessToken  = New(MissingAccessToken, "server did not respond with an access token")
	ErrMissingScriptResult = New(MissingScriptResult, "no script result present")
)

// FileMakerError is a request-level error reported by the server in a
// structured error body. Code and message are passed through verbatim.
type FileMakerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FileMakerError) Error() string {
	return fmt.Sprintf("filemaker error %s: %s", e.Code, e.Message)
}

// ScriptError means the remote script ran to completion but signaled failure
// through a non-zero result code. Distinct from FileMakerError: the HTTP
// request itself succeeded. Data holds the raw result payload, if any.
type ScriptError struct {
	Code int64
	Data string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script failed with code %d", e.Code)
}

// UnknownResponseError is a non-success HTTP response whose body does not
// match the expected error shape for the protocol in use.
type UnknownResponseError struct {
	Status int
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("unknown response with status %d", e.Status)
}
