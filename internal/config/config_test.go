package config

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeSecretSource counts resolutions and can be made to fail.
type fakeSecretSource struct {
	key   string
	err   error
	calls int
}

func (f *fakeSecretSource) GeminiAPIKey(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

func TestStaticSecretSource_Empty(t *testing.T) {
	src := &StaticSecretSource{}
	if _, err := src.GeminiAPIKey(context.Background()); err == nil {
		t.Error("expected error for unset key")
	}
}

func TestCachedSecretSource_ReusesWithinTTL(t *testing.T) {
	inner := &fakeSecretSource{key: "k-1"}
	cached := NewCachedSecretSource(inner, time.Hour)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base
	cached.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		key, err := cached.GeminiAPIKey(context.Background())
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if key != "k-1" {
			t.Fatalf("resolve %d: got %q", i, key)
		}
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 source call within TTL, got %d", inner.calls)
	}

	now = base.Add(2 * time.Hour)
	inner.key = "k-2"
	key, err := cached.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if key != "k-2" {
		t.Errorf("expected refreshed key, got %q", key)
	}
	if inner.calls != 2 {
		t.Errorf("expected second source call after TTL, got %d", inner.calls)
	}
}

func TestCachedSecretSource_ServesStaleOnFailure(t *testing.T) {
	inner := &fakeSecretSource{key: "k-1"}
	cached := NewCachedSecretSource(inner, time.Minute)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base
	cached.now = func() time.Time { return now }

	if _, err := cached.GeminiAPIKey(context.Background()); err != nil {
		t.Fatalf("initial resolve: %v", err)
	}

	now = base.Add(time.Hour)
	inner.err = fmt.Errorf("remote config unavailable")

	key, err := cached.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("expected stale key, got error: %v", err)
	}
	if key != "k-1" {
		t.Errorf("expected stale key k-1, got %q", key)
	}
}
