package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
)

type fakeCamara struct {
	body map[string]any
	err  error

	lastMethod   string
	lastEndpoint string
	lastPayload  map[string]any
}

func (f *fakeCamara) Get(ctx context.Context, endpoint string) (map[string]any, error) {
	f.lastMethod, f.lastEndpoint = http.MethodGet, endpoint
	return f.body, f.err
}

func (f *fakeCamara) Post(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	f.lastMethod, f.lastEndpoint, f.lastPayload = http.MethodPost, endpoint, payload
	return f.body, f.err
}

func (f *fakeCamara) Delete(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	f.lastMethod, f.lastEndpoint, f.lastPayload = http.MethodDelete, endpoint, payload
	return f.body, f.err
}

func newCamaraTestServer(t *testing.T, client CamaraClient) *httptest.Server {
	t.Helper()

	s, err := NewServer(Config{}, &fakeRunner{}, client, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestCamaraPassthroughGet(t *testing.T) {
	t.Parallel()

	fake := &fakeCamara{body: map[string]any{"verificationResult": "TRUE"}}
	server := newCamaraTestServer(t, fake)

	resp, err := http.Get(server.URL + "/camara/location/verify")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if fake.lastEndpoint != "/location/verify" {
		t.Fatalf("endpoint = %q", fake.lastEndpoint)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["verificationResult"] != "TRUE" {
		t.Fatalf("body = %#v", body)
	}
}

func TestCamaraPassthroughPostForwardsPayload(t *testing.T) {
	t.Parallel()

	fake := &fakeCamara{body: map[string]any{"sessionId": "qod-1"}}
	server := newCamaraTestServer(t, fake)

	resp := postJSON(t, server.URL+"/camara/qod/sessions", `{"profile":"QOS_L"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if fake.lastPayload["profile"] != "QOS_L" {
		t.Fatalf("payload = %#v", fake.lastPayload)
	}
}

func TestCamaraPassthroughUpstreamError(t *testing.T) {
	t.Parallel()

	fake := &fakeCamara{err: fmt.Errorf("%w: status 500", dedupx.ErrUpstream)}
	server := newCamaraTestServer(t, fake)

	resp, err := http.Get(server.URL + "/camara/device/status")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestCamaraPassthroughMalformedBody(t *testing.T) {
	t.Parallel()

	fake := &fakeCamara{}
	server := newCamaraTestServer(t, fake)

	resp, err := http.Post(server.URL+"/camara/qod/sessions", "application/json", strings.NewReader(`{"profile":`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if fake.lastMethod != "" {
		t.Fatalf("client invoked with malformed body: %s", fake.lastMethod)
	}
}

func TestCamaraRoutesAbsentWithoutClient(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, nil, nil)
	resp, err := http.Get(server.URL + "/camara/device/status")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
