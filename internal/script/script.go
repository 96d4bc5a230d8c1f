// Package script defines the contract shared by the two transport
// implementations: run a named script with an optional parameter and get
// back a decodable result or an error from the fmerr taxonomy.
package script

import (
	"context"
	"encoding/json"

	"fmscript/cli/internal/fmerr"
)

// Client executes named FileMaker scripts.
//
// A nil parameter means "no parameter": implementations omit the field from
// the wire body entirely rather than sending null. Non-nil parameters must
// be JSON-serializable.
type Client interface {
	Execute(ctx context.Context, scriptName string, parameter any) (Result, error)
}

// Result is the raw payload a script returned, if any. The zero value means
// the script produced no result.
type Result struct {
	payload []byte
	present bool
}

// ResultFromString wraps a payload that arrived in string form. The string
// is expected to itself contain a JSON document (the Data API convention).
func ResultFromString(s string) Result {
	return Result{payload: []byte(s), present: true}
}

// ResultFromValue wraps a payload that arrived as a structured JSON value.
func ResultFromValue(raw json.RawMessage) Result {
	return Result{payload: raw, present: true}
}

// Raw returns the raw payload bytes and whether a payload is present.
func (r Result) Raw() ([]byte, bool) { return r.payload, r.present }

// Decode unmarshals the payload into v. Decoding into *Void always succeeds,
// payload or not; any other target fails with a missing-result error when no
// payload is present.
func (r Result) Decode(v any) error {
	if _, ok := v.(*Void); ok {
		return nil
	}
	if !r.present {
		return fmerr.ErrMissingScriptResult
	}
	if err := json.Unmarshal(r.payload, v); err != nil {
		return fmerr.Wrap(fmerr.CodecFailed, "decode script result", err)
	}
	return nil
}

// Void marks that the caller expects no meaningful result, for scripts that
// return nothing.
type Void struct{}

// Run executes scriptName on c and decodes the result into out. A nil out
// discards the result, whatever it is.
func Run(ctx context.Context, c Client, scriptName string, parameter, out any) error {
	result, err := c.Execute(ctx, scriptName, parameter)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return result.Decode(out)
}
