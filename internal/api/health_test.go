package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/store"
)

type healthReport struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Queue  string `json:"queue"`
}

// failingStore wraps a working store with a Ping that always errors.
type failingStore struct {
	store.Store
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

// queueFunc adapts a function to the Pinger interface.
type queueFunc func(ctx context.Context) error

func (f queueFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)

	resp := ta.do(t, fiber.MethodGet, "/v1/health", "", nil)
	requireStatus(t, resp, fiber.StatusOK)
	report := decodeJSON[healthReport](t, resp)
	if report.Status != "ok" || report.Store != "ok" {
		t.Errorf("report = %+v, want ok/ok", report)
	}
	// No queue configured means no queue key at all.
	if report.Queue != "" {
		t.Errorf("queue = %q, want omitted", report.Queue)
	}
}

func TestHealthDegraded(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)

	app := fiber.New()
	app.Get("/health", NewHealthHandler(failingStore{ta.store}, nil).Health)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil), testTimeout)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	requireStatus(t, resp, fiber.StatusServiceUnavailable)
	report := decodeJSON[healthReport](t, resp)
	if report.Status != "degraded" || report.Store != "unavailable" {
		t.Errorf("report = %+v, want degraded store", report)
	}
}

func TestHealthQueue(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t)

	for _, tc := range []struct {
		name       string
		ping       error
		wantStatus int
		wantQueue  string
	}{
		{"healthy queue", nil, fiber.StatusOK, "ok"},
		{"failing queue", errors.New("redis down"), fiber.StatusServiceUnavailable, "unavailable"},
	} {
		app := fiber.New()
		queue := queueFunc(func(context.Context) error { return tc.ping })
		app.Get("/health", NewHealthHandler(ta.store, queue).Health)
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil), testTimeout)
		if err != nil {
			t.Fatalf("%s: request: %v", tc.name, err)
		}
		requireStatus(t, resp, tc.wantStatus)
		report := decodeJSON[healthReport](t, resp)
		if report.Queue != tc.wantQueue {
			t.Errorf("%s: queue = %q, want %q", tc.name, report.Queue, tc.wantQueue)
		}
	}
}
