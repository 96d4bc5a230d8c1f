// Package odata implements the script contract over the FileMaker OData API.
//
// This is the preferred transport when the server exposes it: every call is
// a single basic-authenticated POST with no session state, so the client is
// trivially safe for concurrent use. Fall back to the Data API client only
// when OData is unavailable.
package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"fmscript/cli/internal/connection"
	"fmscript/cli/internal/fmerr"
	"fmscript/cli/internal/script"
)

// Client is a stateless OData script client.
type Client struct {
	conn   *connection.Connection
	client *http.Client
}

// New creates an OData script client using a default HTTP client.
func New(conn *connection.Connection) *Client {
	return NewWithClient(conn, &http.Client{})
}

// NewWithClient creates an OData script client with a caller-supplied HTTP
// client, for custom timeouts or transports.
func NewWithClient(conn *connection.Connection, hc *http.Client) *Client {
	return &Client{conn: conn, client: hc}
}

type requestBody struct {
	ScriptParameterValue any `json:"scriptParameterValue,omitzero"`
}

type scriptResult struct {
	Code            int64           `json:"code"`
	ResultParameter json.RawMessage `json:"resultParameter"`
}

type responseBody struct {
	ScriptResult scriptResult `json:"scriptResult"`
}

type errorResponseBody struct {
	Error *fmerr.FileMakerError `json:"error"`
}

// Ping verifies connectivity and credentials by requesting the OData
// service document for the configured database.
func (c *Client) Ping(ctx context.Context) error {
	u := url.URL{
		Scheme: c.conn.Scheme(),
		Host:   c.conn.HostPort(),
		Path:   "/fmi/odata/v4/" + c.conn.Database,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmerr.Wrap(fmerr.TransportFailed, "build service document request", err)
	}
	req.SetBasicAuth(c.conn.Username, c.conn.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmerr.Wrap(fmerr.TransportFailed, "request service document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorResponseBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != nil {
			return body.Error
		}
		return &fmerr.UnknownResponseError{Status: resp.StatusCode}
	}
	return nil
}

// Execute runs scriptName with an optional parameter. A nil parameter is
// omitted from the request body entirely.
func (c *Client) Execute(ctx context.Context, scriptName string, parameter any) (script.Result, error) {
	u := url.URL{
		Scheme: c.conn.Scheme(),
		Host:   c.conn.HostPort(),
		Path:   "/fmi/odata/v4/" + c.conn.Database + "/Script." + scriptName,
	}

	payload, err := json.Marshal(requestBody{ScriptParameterValue: parameter})
	if err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.CodecFailed, "encode script parameter", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.TransportFailed, "build script request", err)
	}
	req.SetBasicAuth(c.conn.Username, c.conn.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.TransportFailed, "execute script request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorResponseBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != nil {
			return script.Result{}, body.Error
		}
		return script.Result{}, &fmerr.UnknownResponseError{Status: resp.StatusCode}
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.CodecFailed, "decode script response", err)
	}

	if body.ScriptResult.Code != 0 {
		return script.Result{}, &fmerr.ScriptError{
			Code: body.ScriptResult.Code,
			Data: string(body.ScriptResult.ResultParameter),
		}
	}

	return script.ResultFromValue(body.ScriptResult.ResultParameter), nil
}
