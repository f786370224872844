package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("signed in", "access_token", "abc", "email", "a@b.c", "user_id", "user-1", "objective_id", "obj-1")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["access_token"] != "[REDACTED]" {
		t.Fatalf("token not redacted: %v", fields["access_token"])
	}
	if fields["email"] != "[REDACTED]" {
		t.Fatalf("email not redacted: %v", fields["email"])
	}
	hashed, _ := fields["user_id"].(string)
	if hashed == "user-1" || len(hashed) != len("hash:")+12 {
		t.Fatalf("user_id not hashed: %v", fields["user_id"])
	}
	if fields["objective_id"] != "obj-1" {
		t.Fatalf("objective_id should pass through, got %v", fields["objective_id"])
	}
}

func TestRedactsJWTLikeValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Warn("bad header", "value", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyLTEifQ.sig")

	if got := logs.All()[0].ContextMap()["value"]; got != "[REDACTED]" {
		t.Fatalf("expected JWT to be redacted, got %v", got)
	}
}

func TestWithKeepsRedaction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "test", "secret", "s3cr3t")

	log.Debug("hello")

	fields := logs.All()[0].ContextMap()
	if fields["secret"] != "[REDACTED]" || fields["component"] != "test" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
