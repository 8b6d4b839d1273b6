package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/parley/internal/backend"
	"github.com/matheus3301/parley/internal/bus"
)

func TestMatchesNamespace(t *testing.T) {
	tests := []struct {
		kind       string
		namespaces []string
		want       bool
	}{
		{"notify.error", nil, true},
		{"notify.error", []string{"notify."}, true},
		{"cache.updated", []string{"notify.", "presence."}, false},
		{"presence.typing_changed", []string{"notify.", "presence."}, true},
	}
	for _, tt := range tests {
		if got := matchesNamespace(tt.kind, tt.namespaces); got != tt.want {
			t.Errorf("matchesNamespace(%q, %v) = %v, want %v", tt.kind, tt.namespaces, got, tt.want)
		}
	}
}

func TestToEvent(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	evt, err := toEvent(bus.Event{Kind: bus.KindNotifyError, Timestamp: ts, Payload: bus.Notification{ChatID: "c1", Text: "boom"}})
	if err != nil {
		t.Fatal(err)
	}
	if evt.TimestampUnixMs != ts.UnixMilli() {
		t.Errorf("timestamp = %d", evt.TimestampUnixMs)
	}
	if string(evt.Payload) != `{"chatId":"c1","text":"boom"}` {
		t.Errorf("payload = %s", evt.Payload)
	}

	empty, err := toEvent(bus.Event{Kind: bus.KindUpdated})
	if err != nil {
		t.Fatal(err)
	}
	if empty.Payload != nil {
		t.Errorf("payload = %s, want none", empty.Payload)
	}

	if _, err := toEvent(bus.Event{Kind: "x", Payload: func() {}}); err == nil {
		t.Error("expected error for unencodable payload")
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", fmt.Errorf("fetch: %w", &backend.APIError{Status: http.StatusNotFound}), codes.NotFound},
		{"unauthorized", &backend.APIError{Status: http.StatusUnauthorized}, codes.Unauthenticated},
		{"server error", &backend.APIError{Status: http.StatusBadGateway}, codes.Unavailable},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"other", fmt.Errorf("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := grpcstatus.Code(toStatus("op", tt.err)); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSONCodecEmptyBody(t *testing.T) {
	var req ChatRequest
	if err := (jsonCodec{}).Unmarshal(nil, &req); err != nil {
		t.Fatalf("Unmarshal(nil) = %v", err)
	}
}
