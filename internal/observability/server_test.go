// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, ready func() bool) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startTestServer(t, func() bool { return true })

	addr := server.Addr()
	if addr == "" {
		t.Fatal("server address is empty")
	}

	status, body := getBody(t, "http://"+addr+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("expected Prometheus text format")
	}
	if !strings.Contains(body, "go_") {
		t.Error("expected go_* metrics")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process_* metrics")
	}

	// Custom metrics appear once used.
	metrics := server.Metrics()
	metrics.RequestsTotal.WithLabelValues("login", "200").Inc()
	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	metrics.LoginsTotal.WithLabelValues("denied").Inc()
	metrics.TokensRedeemedTotal.WithLabelValues("confirm", "redeemed").Inc()

	_, body2 := getBody(t, "http://"+addr+"/metrics")
	for _, want := range []string{
		"gatehouse_requests_total",
		"gatehouse_registrations_total",
		"gatehouse_logins_total",
		"gatehouse_tokens_redeemed_total",
	} {
		if !strings.Contains(body2, want) {
			t.Errorf("expected %s metric", want)
		}
	}
}

func TestServer_Liveness(t *testing.T) {
	server := startTestServer(t, func() bool { return false })

	status, _ := getBody(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", status)
	}
}

func TestServer_Readiness(t *testing.T) {
	ready := false
	server := startTestServer(t, func() bool { return ready })

	status, _ := getBody(t, "http://"+server.Addr()+"/healthz/readiness")
	if status != http.StatusServiceUnavailable {
		t.Errorf("readiness while not ready: expected 503, got %d", status)
	}

	ready = true
	status, _ = getBody(t, "http://"+server.Addr()+"/healthz/readiness")
	if status != http.StatusOK {
		t.Errorf("readiness while ready: expected 200, got %d", status)
	}
}

func TestServer_DoubleStart(t *testing.T) {
	server := startTestServer(t, nil)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("second stop should be a no-op, got: %v", err)
	}
}
