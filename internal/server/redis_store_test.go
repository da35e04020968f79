package server

import (
	"testing"
	"time"

	"coursecast/internal/testsupport/redisstub"
)

func TestRedisStoreEnforcesWindow(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	store := newRedisStore(stub.Addr(), "", "", time.Second)
	defer store.Close()

	const key = "coursecast:admin:203.0.113.7"
	for i := 0; i < 2; i++ {
		allowed, _, err := store.Allow(key, 2, time.Minute)
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, retryAfter, err := store.Allow(key, 2, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("third request within the window should be throttled")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v", retryAfter)
	}
	if got := stub.Count(key); got != 3 {
		t.Fatalf("counter = %d, want 3", got)
	}
}

func TestRedisStoreIsolatesKeys(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	store := newRedisStore(stub.Addr(), "", "", time.Second)
	defer store.Close()

	if allowed, _, err := store.Allow("coursecast:admin:a", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("first key: allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _ := store.Allow("coursecast:admin:a", 1, time.Minute); allowed {
		t.Fatal("first key should be exhausted")
	}
	if allowed, _, err := store.Allow("coursecast:admin:b", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("second key should have its own window: allowed=%v err=%v", allowed, err)
	}
}

func TestRedisStoreAuthenticates(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{Password: "sesame"})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	store := newRedisStore(stub.Addr(), "", "sesame", time.Second)
	defer store.Close()

	if allowed, _, err := store.Allow("coursecast:admin:a", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("authenticated request: allowed=%v err=%v", allowed, err)
	}

	wrong := newRedisStore(stub.Addr(), "", "nope", time.Second)
	defer wrong.Close()
	if _, _, err := wrong.Allow("coursecast:admin:a", 1, time.Minute); err == nil {
		t.Fatal("wrong password should fail")
	}
}
