package activitymap_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/go-fleet-auth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventSessionLost,
		UserID:    "17",
		Email:     "ana@fleet.test",
		Metadata: map[string]any{
			"reason": "rejected",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "17" {
		t.Fatalf("expected actor_id 17, got %q", out.ActorID)
	}
	if out.Verb != string(auth.ActivityEventSessionLost) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityEventSessionLost, out.Verb)
	}
	if out.ObjectType != "session" {
		t.Fatalf("expected object_type session, got %q", out.ObjectType)
	}
	if out.ObjectID != "17" {
		t.Fatalf("expected object_id 17, got %q", out.ObjectID)
	}
	if out.Channel != "fleet" {
		t.Fatalf("expected channel fleet, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata["reason"] != "rejected" {
		t.Fatalf("expected metadata reason rejected, got %#v", out.Metadata["reason"])
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "ana@fleet.test" {
		t.Fatalf("expected metadata email, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailure,
		Email:     "who@fleet.test",
		Metadata: map[string]any{
			"request_id":                 "req-1",
			activitymap.MetadataKeyEmail: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("console"),
		activitymap.WithObjectIDResolver(func(e auth.ActivityEvent) string {
			if v, ok := e.Metadata["request_id"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "console" {
		t.Fatalf("expected object_type console, got %q", out.ObjectType)
	}
	if out.ObjectID != "req-1" {
		t.Fatalf("expected object_id req-1, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "existing" {
		t.Fatalf("expected existing email preserved, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses user id when present",
			event:  auth.ActivityEvent{UserID: "1", Email: "a@b.com"},
			expect: "1",
		},
		{
			name:   "uses email when user id missing",
			event:  auth.ActivityEvent{Email: "a@b.com"},
			expect: "a@b.com",
		},
		{
			name:   "uses default fallback when nothing identifies the actor",
			event:  auth.ActivityEvent{},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("fleetctl")},
			expect: "fleetctl",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}
