package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	client, err := NewClient(host, port, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", 8080); err == nil {
		t.Fatalf("expected error for empty host")
	}
	if _, err := NewClient("localhost", 0); err == nil {
		t.Fatalf("expected error for zero port")
	}
	if _, err := NewClient("localhost", 70000); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	c, err := NewClient(" localhost ", 8080)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.BaseURL() != "http://localhost:8080" {
		t.Fatalf("unexpected base url: %s", c.BaseURL())
	}
}

func TestSubmitSendsEnvelope(t *testing.T) {
	var got struct {
		Command string          `json:"command"`
		Version int             `json:"version"`
		Payload json.RawMessage `json:"payload"`
	}
	var apiKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != commandsPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		apiKey = r.Header.Get("X-API-Key")
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"uuid":"abc"}`))
	}, WithAPIKey("secret"))

	res, err := client.Submit(context.Background(), StoreReport, 5, []byte(` {"certname":"node1"} `))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.OK() || string(res.Body) != `{"uuid":"abc"}` {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got.Command != "store-report" || got.Version != 5 {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if string(got.Payload) != `{"certname":"node1"}` {
		t.Fatalf("payload not spliced verbatim: %s", got.Payload)
	}
	if apiKey != "secret" {
		t.Fatalf("expected api key header")
	}
}

func TestSubmitNonOKIsResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	})
	res, err := client.Submit(context.Background(), ReplaceCatalog, 9, []byte(`{}`))
	if err != nil {
		t.Fatalf("non-ok status should not be an error: %v", err)
	}
	if res.OK() {
		t.Fatalf("expected non-ok result")
	}
	httpErr := res.AsHTTPError()
	if httpErr == nil || httpErr.Status != http.StatusServiceUnavailable || httpErr.Message != "queue full" {
		t.Fatalf("unexpected http error: %+v", httpErr)
	}
}

func TestSubmitCreatedIsNotOK(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	res, err := client.Submit(context.Background(), ReplaceFacts, 4, []byte(`{}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.OK() {
		t.Fatalf("only 200 counts as accepted")
	}
	if res.AsHTTPError().Message != "Created" {
		t.Fatalf("expected status text fallback, got %q", res.AsHTTPError().Message)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})
	if _, err := client.Submit(context.Background(), StoreReport, -1, []byte(`{}`)); err == nil {
		t.Fatalf("expected error for negative version")
	}
	if _, err := client.Submit(context.Background(), StoreReport, 1, []byte("  ")); !errors.Is(err, errEmptyPayload) {
		t.Fatalf("expected empty payload error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no requests, got %d", calls)
	}
}

func TestParseName(t *testing.T) {
	cases := map[string]Name{
		"replace-catalog": ReplaceCatalog,
		" Store_Report ":  StoreReport,
		"replace facts":   ReplaceFacts,
	}
	for raw, want := range cases {
		got, ok := ParseName(raw)
		if !ok || got != want {
			t.Fatalf("ParseName(%q) = %q, %v", raw, got, ok)
		}
	}
	if got, ok := ParseName("Deactivate_Node"); ok || got != "deactivate-node" {
		t.Fatalf("unexpected unknown name handling: %q %v", got, ok)
	}
}
