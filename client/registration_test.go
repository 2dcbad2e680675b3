package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistersThenHeartbeats(t *testing.T) {
	var registers, heartbeats atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/services/register":
			registers.Add(1)
			var body registerBody
			_ = json.NewDecoder(r.Body).Decode(&body)
			require.Equal(t, "svc-1", body.ServiceID)
			w.WriteHeader(http.StatusOK)
		case "/api/v1/services/heartbeat":
			heartbeats.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{
		GatewayURL:        srv.URL,
		ServiceID:         "svc-1",
		ServiceURL:        "http://host-1",
		HeartbeatInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	require.Greater(t, registers.Load(), int32(0), "expected at least one registration call")
	require.Greater(t, heartbeats.Load(), int32(0), "expected at least one heartbeat call")
}

func TestRegisterRetriesWithBackoffUntilSuccess(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/services/register" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{
		GatewayURL:        srv.URL,
		ServiceID:         "svc-1",
		ServiceURL:        "http://host-1",
		HeartbeatInterval: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for registration to succeed after retries")
	}

	require.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestRegisterGivesUpWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{
		GatewayURL: srv.URL,
		ServiceID:  "svc-1",
		ServiceURL: "http://host-1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	require.Error(t, err, "expected Run to return an error once the context is cancelled mid-retry")
}
