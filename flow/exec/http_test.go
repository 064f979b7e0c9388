package exec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestHTTPCallerPostsJSON(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "echo": "hi"}`))
	}))
	defer server.Close()

	caller := NewHTTPCaller()
	result, err := caller.Call(context.Background(), server.URL, map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody["msg"] != "hi" {
		t.Errorf("request body msg = %v, want hi", gotBody["msg"])
	}
	if result["ok"] != true {
		t.Errorf("result ok = %v, want true", result["ok"])
	}
	if result["status_code"] != 200 {
		t.Errorf("status_code = %v, want 200", result["status_code"])
	}
}

func TestHTTPCallerNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	caller := NewHTTPCaller()
	result, err := caller.Call(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if result["body"] != "plain text" {
		t.Errorf("body = %v, want plain text", result["body"])
	}
}

func TestHTTPCallerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	caller := NewHTTPCaller()
	_, err := caller.Call(context.Background(), server.URL, nil)
	if err == nil {
		t.Fatal("Call() expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want mention of status 500", err)
	}
}

func TestHTTPCallerCustomHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	caller := NewHTTPCaller(WithHeader("Authorization", "Bearer token"))
	if _, err := caller.Call(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %q, want Bearer token", gotAuth)
	}
}

func TestHTTPCallerEmptyTarget(t *testing.T) {
	caller := NewHTTPCaller()
	if _, err := caller.Call(context.Background(), "", nil); err == nil {
		t.Fatal("Call() expected error for empty target")
	}
}
