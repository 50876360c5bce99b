package prowl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"netgrowl/internal/failure"
)

func TestPostSendsForm(t *testing.T) {
	var (
		gotMethod string
		gotForm   url.Values
	)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotMethod = r.Method
		gotForm = r.PostForm
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><prowl><success code="200" remaining="999" resetdate="1"/></prowl>`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Post(context.Background(), Request{
		APIKey:      "k123",
		Application: "netgrowl: build",
		Event:       "done",
		Description: "all green",
		Priority:    -1,
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %s", gotMethod)
	}
	want := map[string]string{
		"apikey":      "k123",
		"application": "netgrowl: build",
		"event":       "done",
		"description": "all green",
		"priority":    "-1",
	}
	for k, v := range want {
		if gotForm.Get(k) != v {
			t.Fatalf("form %s = %q, want %q", k, gotForm.Get(k), v)
		}
	}
}

func TestPostClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "invalid key", status: http.StatusUnauthorized, body: `<prowl><error code="401">Invalid API key</error></prowl>`, want: failure.ErrAuth},
		{name: "invalid key in 200 body", status: http.StatusOK, body: `<prowl><error code="401">Invalid API key</error></prowl>`, want: failure.ErrAuth},
		{name: "rate limited", status: 406, body: `<prowl><error code="406">Not accepted</error></prowl>`, want: failure.ErrRelay},
		{name: "server error", status: http.StatusInternalServerError, body: "oops", want: failure.ErrRelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(srv.URL, time.Second).Post(context.Background(), Request{APIKey: "k", Application: "a", Event: "e"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want exactly one attempt", calls)
			}
		})
	}
}

func TestPostTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	err := New(addr, time.Second).Post(context.Background(), Request{APIKey: "k"})
	if !errors.Is(err, failure.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPostMissingKey(t *testing.T) {
	err := (&Client{}).Post(context.Background(), Request{Application: "a"})
	if !errors.Is(err, failure.ErrConfig) || !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected config error, got %v", err)
	}
}
