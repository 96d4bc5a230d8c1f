// Package dataapi implements the script contract over the FileMaker Data
// API. Unlike the OData transport it is stateful: the server issues session
// tokens, and the client owns a single cached token behind a mutex.
//
// The Data API has no standalone script endpoint worth using (the GET form
// is length-restricted and leaks parameters into server logs), so every
// script call rides along with a primary request. The client issues a find
// on a caller-configured layout as that primary request; see LayoutContext.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"fmscript/cli/internal/connection"
	"fmscript/cli/internal/fmerr"
	"fmscript/cli/internal/script"
)

// accessTokenHeader carries the session token in authentication responses.
const accessTokenHeader = "X-FM-Data-Access-Token"

// tokenWindow is the rolling usage window: every token use pushes the local
// expiry out again, so a cached token is only dropped via ReleaseToken.
const tokenWindow = 14 * time.Minute

// LayoutContext names a minimal pre-existing layout and record used as the
// primary find request each script execution piggybacks on. The find must
// succeed server-side; ideally point it at a layout with a single field and
// a single matching record.
type LayoutContext struct {
	Layout      string
	SearchField string
	SearchValue string
}

// NewLayoutContext creates a script layout context.
func NewLayoutContext(layout, searchField, searchValue string) LayoutContext {
	return LayoutContext{Layout: layout, SearchField: searchField, SearchValue: searchValue}
}

// Client is a Data API script client. It is safe for concurrent use: only
// token acquisition and release serialize on the internal mutex, never the
// find request itself.
type Client struct {
	conn   *connection.Connection
	layout LayoutContext
	client *http.Client

	mu    sync.Mutex
	token *sessionToken
}

type sessionToken struct {
	value  string
	expiry time.Time
}

// New creates a Data API script client using a default HTTP client.
func New(conn *connection.Connection, layout LayoutContext) *Client {
	return NewWithClient(conn, layout, &http.Client{})
}

// NewWithClient creates a Data API script client with a caller-supplied
// HTTP client, for custom timeouts or transports.
func NewWithClient(conn *connection.Connection, layout LayoutContext, hc *http.Client) *Client {
	return &Client{conn: conn, layout: layout, client: hc}
}

func (c *Client) apiURL(path string) string {
	u := url.URL{
		Scheme: c.conn.Scheme(),
		Host:   c.conn.HostPort(),
		Path:   "/fmi/data/v1/databases/" + c.conn.Database + path,
	}
	return u.String()
}

// getToken returns a valid session token, authenticating when none is held.
// The mutex is held across the whole acquisition so only one authentication
// is in flight per client at a time; a held token has its expiry pushed out
// and is reused without touching the network.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.token != nil {
		c.token.expiry = now.Add(tokenWindow)
		if now.Before(c.token.expiry) {
			return c.token.value, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("/sessions"), nil)
	if err != nil {
		return "", fmerr.Wrap(fmerr.TransportFailed, "build session request", err)
	}
	req.SetBasicAuth(c.conn.Username, c.conn.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmerr.Wrap(fmerr.TransportFailed, "authenticate session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errorFromResponse(resp)
	}

	value := resp.Header.Get(accessTokenHeader)
	if value == "" {
		return "", fmerr.ErrMissingAccessToken
	}

	c.token = &sessionToken{value: value, expiry: now.Add(tokenWindow)}
	return value, nil
}

// ReleaseToken invalidates the cached session token. With no token held it
// returns immediately without touching the network. Otherwise it issues a
// DELETE against the sessions endpoint; the local token is discarded either
// way, so only a transport failure of the DELETE itself can surface.
func (c *Client) ReleaseToken(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = nil
	c.mu.Unlock()

	if token == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.apiURL("/sessions/"+token.value), nil)
	if err != nil {
		return fmerr.Wrap(fmerr.TransportFailed, "build session release request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmerr.Wrap(fmerr.TransportFailed, "release session", err)
	}
	resp.Body.Close()

	return nil
}

// Ping verifies connectivity and credentials by acquiring a session token
// and releasing it again. No layout is touched, so it works with an empty
// LayoutContext.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.getToken(ctx); err != nil {
		return err
	}
	return c.ReleaseToken(ctx)
}

type findRequest struct {
	Query       map[string]string `json:"query"`
	Limit       int               `json:"limit"`
	Script      string            `json:"script"`
	ScriptParam *string           `json:"script.param,omitempty"`
}

type findResponse struct {
	ScriptResult string `json:"scriptResult"`
	ScriptError  string `json:"scriptError"`
}

type errorResponseBody struct {
	Messages []fmerr.FileMakerError `json:"messages"`
}

// Execute runs scriptName with an optional parameter by attaching it to a
// find on the configured layout. The parameter is re-serialized to a JSON
// string before being placed in the body: the Data API convention embeds
// the parameter payload double-encoded. A nil parameter is omitted.
func (c *Client) Execute(ctx context.Context, scriptName string, parameter any) (script.Result, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return script.Result{}, err
	}

	body := findRequest{
		Query:  map[string]string{c.layout.SearchField: c.layout.SearchValue},
		Limit:  1,
		Script: scriptName,
	}
	if parameter != nil {
		encoded, err := json.Marshal(parameter)
		if err != nil {
			return script.Result{}, fmerr.Wrap(fmerr.CodecFailed, "encode script parameter", err)
		}
		param := string(encoded)
		body.ScriptParam = &param
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.CodecFailed, "encode find request", err)
	}

	u := c.apiURL("/layouts/" + c.layout.Layout + "/_find")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.TransportFailed, "build find request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.TransportFailed, "execute find request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return script.Result{}, errorFromResponse(resp)
	}

	var out findResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return script.Result{}, fmerr.Wrap(fmerr.CodecFailed, "decode find response", err)
	}

	if out.ScriptError != "0" {
		code, err := strconv.ParseInt(out.ScriptError, 10, 64)
		if err != nil {
			code = -1
		}
		return script.Result{}, &fmerr.ScriptError{Code: code, Data: out.ScriptResult}
	}

	return script.ResultFromString(out.ScriptResult), nil
}

// errorFromResponse maps a non-success Data API response onto the error
// taxonomy: the first structured message wins, anything else is unknown.
func errorFromResponse(resp *http.Response) error {
	var body errorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && len(body.Messages) > 0 {
		first := body.Messages[0]
		return &first
	}
	return &fmerr.UnknownResponseError{Status: resp.StatusCode}
}
