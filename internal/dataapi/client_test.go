package dataapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"fmscript/cli/internal/connection"
	"fmscript/cli/internal/fmerr"
)

// fakeServer is a minimal Data API stand-in tracking session traffic.
type fakeServer struct {
	*httptest.Server

	sessionPosts   atomic.Int64
	sessionDeletes atomic.Int64

	mu          sync.Mutex
	deletedPath string
	findBodies  []map[string]any

	scriptResult string
	scriptError  string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{scriptResult: `{"success":true}`, scriptError: "0"}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/fmi/data/v1/databases/sales/sessions":
			if _, _, ok := r.BasicAuth(); !ok {
				t.Error("session request missing basic auth")
			}
			fs.sessionPosts.Add(1)
			w.Header().Set("X-FM-Data-Access-Token", "token-123")
			w.Write([]byte(`{"messages":[{"code":"0","message":"OK"}]}`))

		case r.Method == http.MethodDelete:
			fs.sessionDeletes.Add(1)
			fs.mu.Lock()
			fs.deletedPath = r.URL.Path
			fs.mu.Unlock()
			w.Write([]byte(`{}`))

		case r.Method == http.MethodPost && r.URL.Path == "/fmi/data/v1/databases/sales/layouts/script_layout/_find":
			if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
				t.Errorf("Authorization = %q", got)
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			fs.mu.Lock()
			fs.findBodies = append(fs.findBodies, body)
			result, scriptErr := fs.scriptResult, fs.scriptError
			fs.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{
				"scriptResult": result,
				"scriptError":  scriptErr,
			})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.Server.Close)
	return fs
}

func (fs *fakeServer) client(t *testing.T) *Client {
	t.Helper()
	u, err := url.Parse(fs.URL)
	if err != nil {
		t.Fatal(err)
	}
	conn := connection.New(u.Hostname(), "sales", "foo", "bar").
		WithPort(u.Port()).
		WithoutTLS()
	return New(conn, NewLayoutContext("script_layout", "id", "1"))
}

func TestExecuteAcquiresAndCachesToken(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client(t)
	ctx := context.Background()

	result, err := client.Execute(ctx, "my_script", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := result.Decode(&out); err != nil || !out.Success {
		t.Errorf("Decode() = %+v, %v", out, err)
	}
	if got := fs.sessionPosts.Load(); got != 1 {
		t.Fatalf("session posts = %d, want 1", got)
	}

	// Second call within the window rides the cached token.
	if _, err := client.Execute(ctx, "my_script", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := fs.sessionPosts.Load(); got != 1 {
		t.Errorf("session posts after second call = %d, want 1", got)
	}
}

func TestExecuteFindBody(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client(t)

	param := map[string]any{"invoice": 42}
	if _, err := client.Execute(context.Background(), "my_script", param); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	fs.mu.Lock()
	body := fs.findBodies[0]
	fs.mu.Unlock()

	query, ok := body["query"].(map[string]any)
	if !ok || query["id"] != "1" {
		t.Errorf("query = %v", body["query"])
	}
	if body["limit"] != float64(1) {
		t.Errorf("limit = %v, want 1", body["limit"])
	}
	if body["script"] != "my_script" {
		t.Errorf("script = %v", body["script"])
	}

	// The parameter is embedded double-encoded: a JSON string whose content
	// is itself a JSON document.
	rawParam, ok := body["script.param"].(string)
	if !ok {
		t.Fatalf("script.param = %T(%v), want string", body["script.param"], body["script.param"])
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(rawParam), &decoded); err != nil {
		t.Fatalf("script.param %q is not a JSON document: %v", rawParam, err)
	}
	if decoded["invoice"] != float64(42) {
		t.Errorf("decoded script.param = %v", decoded)
	}
}

func TestExecuteOmitsNilParameter(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client(t)

	if _, err := client.Execute(context.Background(), "my_script", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	fs.mu.Lock()
	body := fs.findBodies[0]
	fs.mu.Unlock()
	if _, present := body["script.param"]; present {
		t.Error("nil parameter should omit script.param entirely")
	}
}

func TestExecuteScriptError(t *testing.T) {
	tests := []struct {
		name        string
		scriptError string
		wantCode    int64
	}{
		{name: "numeric code", scriptError: "5", wantCode: 5},
		{name: "unparseable code", scriptError: "kaput", wantCode: -1},
		{name: "empty code", scriptError: "", wantCode: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.mu.Lock()
			fs.scriptError = tt.scriptError
			fs.scriptResult = "diagnostic output"
			fs.mu.Unlock()

			_, err := fs.client(t).Execute(context.Background(), "my_script", nil)
			var se *fmerr.ScriptError
			if !errors.As(err, &se) {
				t.Fatalf("Execute() error = %v, want ScriptError", err)
			}
			if se.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", se.Code, tt.wantCode)
			}
			if se.Data != "diagnostic output" {
				t.Errorf("Data = %q", se.Data)
			}
		})
	}
}

func TestReleaseTokenWithoutToken(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client(t)

	if err := client.ReleaseToken(context.Background()); err != nil {
		t.Fatalf("ReleaseToken() error = %v", err)
	}
	if got := fs.sessionDeletes.Load(); got != 0 {
		t.Errorf("session deletes = %d, want 0 (no-op without token)", got)
	}
}

func TestReleaseTokenDeletesSession(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client(t)
	ctx := context.Background()

	if _, err := client.Execute(ctx, "my_script", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := client.ReleaseToken(ctx); err != nil {
		t.Fatalf("ReleaseToken() error = %v", err)
	}

	if got := fs.sessionDeletes.Load(); got != 1 {
		t.Fatalf("session deletes = %d, want 1", got)
	}
	fs.mu.Lock()
	deleted := fs.deletedPath
	fs.mu.Unlock()
	if deleted != "/fmi/data/v1/databases/sales/sessions/token-123" {
		t.Errorf("deleted path = %q", deleted)
	}

	// The slot is cleared, so the next execute authenticates again.
	if _, err := client.Execute(ctx, "my_script", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := fs.sessionPosts.Load(); got != 2 {
		t.Errorf("session posts = %d, want 2 after release", got)
	}
}

func TestMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Authentication "succeeds" but the token header never shows up.
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	conn := connection.New(u.Hostname(), "sales", "foo", "bar").
		WithPort(u.Port()).
		WithoutTLS()
	client := New(conn, NewLayoutContext("script_layout", "id", "1"))

	_, err := client.Execute(context.Background(), "my_script", nil)
	if !errors.Is(err, fmerr.ErrMissingAccessToken) {
		t.Errorf("Execute() error = %v, want ErrMissingAccessToken", err)
	}
}

func TestSessionFileMakerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"code": "212", "message": "Invalid user account"}},
		})
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	conn := connection.New(u.Hostname(), "sales", "foo", "bar").
		WithPort(u.Port()).
		WithoutTLS()
	client := New(conn, NewLayoutContext("script_layout", "id", "1"))

	_, err := client.Execute(context.Background(), "my_script", nil)
	var fme *fmerr.FileMakerError
	if !errors.As(err, &fme) || fme.Code != "212" {
		t.Errorf("Execute() error = %v, want FileMakerError 212", err)
	}
}

func TestUnknownResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	conn := connection.New(u.Hostname(), "sales", "foo", "bar").
		WithPort(u.Port()).
		WithoutTLS()
	client := New(conn, NewLayoutContext("script_layout", "id", "1"))

	_, err := client.Execute(context.Background(), "my_script", nil)
	var ue *fmerr.UnknownResponseError
	if !errors.As(err, &ue) || ue.Status != http.StatusServiceUnavailable {
		t.Errorf("Execute() error = %v, want UnknownResponseError 503", err)
	}
}

func TestConcurrentExecutes(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Execute(ctx, "my_script", nil); err != nil {
				t.Errorf("Execute() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Acquisition is serialized on the slot mutex, so exactly one
	// authentication happens and the slot ends up with one token.
	if got := fs.sessionPosts.Load(); got != 1 {
		t.Errorf("session posts = %d, want 1", got)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.token == nil || client.token.value != "token-123" {
		t.Errorf("token slot = %+v, want token-123", client.token)
	}
}
