package odata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"fmscript/cli/internal/connection"
	"fmscript/cli/internal/fmerr"
)

// testConn points a connection at the given httptest server.
func testConn(t *testing.T, serverURL string) *connection.Connection {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	return connection.New(u.Hostname(), "sales", "foo", "bar").
		WithPort(u.Port()).
		WithoutTLS()
}

func TestExecuteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fmi/odata/v4/sales/Script.my_script" {
			t.Errorf("Path = %v", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Method = %v, want POST", r.Method)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "foo" || pass != "bar" {
			t.Errorf("BasicAuth = %v %v %v", user, pass, ok)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["scriptParameterValue"] != "input" {
			t.Errorf("scriptParameterValue = %v", body["scriptParameterValue"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"scriptResult": map[string]any{
				"code":            0,
				"resultParameter": map[string]any{"success": true},
			},
		})
	}))
	defer server.Close()

	client := New(testConn(t, server.URL))

	result, err := client.Execute(context.Background(), "my_script", "input")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := result.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !out.Success {
		t.Error("Decode() success = false, want true")
	}
}

func TestExecuteOmitsNilParameter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, present := body["scriptParameterValue"]; present {
			t.Error("nil parameter should be omitted from the body, not sent as null")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"scriptResult": map[string]any{"code": 0, "resultParameter": "done"},
		})
	}))
	defer server.Close()

	client := New(testConn(t, server.URL))
	if _, err := client.Execute(context.Background(), "my_script", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteScriptFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"scriptResult": map[string]any{
				"code":            5,
				"resultParameter": map[string]any{"reason": "bad input"},
			},
		})
	}))
	defer server.Close()

	client := New(testConn(t, server.URL))

	_, err := client.Execute(context.Background(), "my_script", nil)
	var se *fmerr.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("Execute() error = %v, want ScriptError", err)
	}
	if se.Code != 5 {
		t.Errorf("Code = %d, want 5", se.Code)
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(se.Data), &data); err != nil || data["reason"] != "bad input" {
		t.Errorf("Data = %q, want stringified result parameter", se.Data)
	}
}

func TestExecuteFileMakerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "212", "message": "Invalid user account"},
		})
	}))
	defer server.Close()

	client := New(testConn(t, server.URL))

	_, err := client.Execute(context.Background(), "my_script", nil)
	var fme *fmerr.FileMakerError
	if !errors.As(err, &fme) {
		t.Fatalf("Execute() error = %v, want FileMakerError", err)
	}
	if fme.Code != "212" || fme.Message != "Invalid user account" {
		t.Errorf("FileMakerError = %+v", fme)
	}
}

func TestExecuteUnknownResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	client := New(testConn(t, server.URL))

	_, err := client.Execute(context.Background(), "my_script", nil)
	var ue *fmerr.UnknownResponseError
	if !errors.As(err, &ue) {
		t.Fatalf("Execute() error = %v, want UnknownResponseError", err)
	}
	if ue.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", ue.Status, http.StatusBadGateway)
	}
}

func TestExecuteTransportError(t *testing.T) {
	conn := connection.New("localhost", "sales", "foo", "bar").
		WithPort("1").
		WithoutTLS()

	_, err := New(conn).Execute(context.Background(), "my_script", nil)
	var e *fmerr.E
	if !errors.As(err, &e) || e.Kind != fmerr.TransportFailed {
		t.Errorf("Execute() error = %v, want transport kind", err)
	}
}
