package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultKeyPrefix}
	got, err := store.redisKey("abc")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "camara:history:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "camara:history:abc")
	}
}

func TestUpstashRedisStoreRedisKeyEmptySession(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultKeyPrefix}
	_, err := store.redisKey("   ")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidSession", err)
	}
}

func TestUpstashRedisStoreAppendIssuesCappedListCommands(t *testing.T) {
	t.Parallel()

	var commands [][]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
		}
		commands = append(commands, cmd)
		fmt.Fprint(w, `{"result":1}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithMaxRecords(10),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	err = store.Append(context.Background(), Record{
		SessionID: "session-1",
		Query:     "find location of device ABC123",
		Answer:    "loc:ABC123",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if len(commands) != 3 {
		t.Fatalf("issued %d commands, want RPUSH+LTRIM+EXPIRE", len(commands))
	}
	if commands[0][0] != "RPUSH" || commands[0][1] != "camara:history:session-1" {
		t.Fatalf("first command = %#v", commands[0])
	}
	if commands[1][0] != "LTRIM" {
		t.Fatalf("second command = %#v", commands[1])
	}
	if commands[2][0] != "EXPIRE" {
		t.Fatalf("third command = %#v", commands[2])
	}

	var rec Record
	if err := json.Unmarshal([]byte(commands[0][2].(string)), &rec); err != nil {
		t.Fatalf("unmarshal pushed record: %v", err)
	}
	if rec.Answer != "loc:ABC123" {
		t.Fatalf("pushed record = %#v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not defaulted")
	}
}

func TestUpstashRedisStoreRecentDecodesRecords(t *testing.T) {
	t.Parallel()

	first, _ := json.Marshal(Record{SessionID: "s", Query: "q1", Answer: "a1", CreatedAt: time.Now().UTC()})
	second, _ := json.Marshal(Record{SessionID: "s", Query: "q2", Answer: "a2", CreatedAt: time.Now().UTC()})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
		}
		if cmd[0] != "LRANGE" {
			t.Errorf("command = %#v, want LRANGE", cmd)
		}
		result, _ := json.Marshal([]string{string(first), string(second)})
		fmt.Fprintf(w, `{"result":%s}`, result)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	records, err := store.Recent(context.Background(), "s", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(records))
	}
	if records[0].Query != "q1" || records[1].Answer != "a2" {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestUpstashRedisStoreSurfacesRESTErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGTYPE"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if err := store.Delete(context.Background(), "s"); err == nil {
		t.Fatalf("Delete() error = nil, want REST error surfaced")
	}
}
