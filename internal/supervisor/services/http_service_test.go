// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// mockServer implements HTTPServer for tests.
type mockServer struct {
	listenErr   error
	shutdownErr error
	release     chan struct{}
	shutdowns   int
}

func newMockServer() *mockServer {
	return &mockServer{release: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.release
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(_ context.Context) error {
	m.shutdowns++
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newMockServer()
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if server.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", server.shutdowns)
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := newMockServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve returned %v, want wrapped listen error", err)
	}
}

func TestHTTPServiceString(t *testing.T) {
	if got := NewHTTPService(newMockServer(), time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q, want http-server", got)
	}
}
