package camara

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
)

func newTestClient(t *testing.T, handler http.Handler, cfgTTL time.Duration) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	coalescer := dedupx.New(dedupx.Config{TTL: cfgTTL})
	t.Cleanup(coalescer.Close)

	client, err := NewClient(
		Config{BaseURL: server.URL, Token: "token"},
		coalescer,
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestClientGetDecodesResponse(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("authorization = %q", got)
		}
		fmt.Fprint(w, `{"verificationResult":"TRUE"}`)
	}), 5*time.Second)

	body, err := client.Get(context.Background(), "/location/verify")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if body["verificationResult"] != "TRUE" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestClientCoalescesConcurrentIdenticalPosts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, `{"sessionId":"qod-1","qosStatus":"AVAILABLE"}`)
	}), 5*time.Second)

	// The payloads differ only in volatile fields and must share one request.
	payloads := []map[string]any{
		{"profile": "QOS_L", "sessionId": "a", "timestamp": "t1"},
		{"profile": "QOS_L", "sessionId": "b", "timestamp": "t2"},
	}

	results := make([]map[string]any, len(payloads))
	errs := make([]error, len(payloads))
	var wg sync.WaitGroup
	for i, payload := range payloads {
		wg.Add(1)
		go func(i int, payload map[string]any) {
			defer wg.Done()
			results[i], errs[i] = client.Post(context.Background(), "/qod/sessions", payload)
		}(i, payload)
	}
	wg.Wait()

	for i := range payloads {
		if errs[i] != nil {
			t.Fatalf("Post() caller %d error = %v", i, errs[i])
		}
		if results[i]["qosStatus"] != "AVAILABLE" {
			t.Fatalf("caller %d body = %#v", i, results[i])
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("backend hit %d times, want 1", got)
	}
}

func TestClientDistinctEndpointsDoNotCoalesce(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}), 5*time.Second)

	if _, err := client.Get(context.Background(), "/device/a/status"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := client.Get(context.Background(), "/device/b/status"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("backend hit %d times, want 2", got)
	}
}

func TestClientUpstreamStatusIsUpstreamError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"device not found"}`, http.StatusNotFound)
	}), 5*time.Second)

	_, err := client.Get(context.Background(), "/device/missing/status")
	if !errors.Is(err, dedupx.ErrUpstream) {
		t.Fatalf("Get() error = %v, want ErrUpstream", err)
	}
}

func TestClientEmptyEndpointIsValidationError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be hit")
	}), 5*time.Second)

	_, err := client.Get(context.Background(), "   ")
	if !errors.Is(err, dedupx.ErrValidation) {
		t.Fatalf("Get() error = %v, want ErrValidation", err)
	}
}

func TestClientDeleteSendsPayload(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}), 5*time.Second)

	body, err := client.Delete(context.Background(), "/qod/sessions/qod-1", map[string]any{"reason": "done"})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty body for 204, got %#v", body)
	}
	if gotBody["reason"] != "done" {
		t.Fatalf("backend received %#v", gotBody)
	}
}
