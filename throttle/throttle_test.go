package throttle_test

import (
	"testing"

	"github.com/meridianhq/conduct/throttle"
)

func TestAllow_DisabledAlwaysAllows(t *testing.T) {
	m := throttle.NewManager(throttle.Config{})
	for i := 0; i < 100; i++ {
		if !m.Allow("key-1") {
			t.Fatal("disabled throttle rejected an operation")
		}
	}
	if m.Tracked() != 0 {
		t.Errorf("Tracked() = %d, want 0 when disabled", m.Tracked())
	}
}

func TestAllow_BurstThenReject(t *testing.T) {
	m := throttle.NewManager(throttle.Config{RateLimit: 0.001, Burst: 3})

	for i := 0; i < 3; i++ {
		if !m.Allow("key-1") {
			t.Fatalf("op %d rejected within burst", i)
		}
	}
	if m.Allow("key-1") {
		t.Fatal("op allowed past burst budget")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	m := throttle.NewManager(throttle.Config{RateLimit: 0.001, Burst: 1})

	if !m.Allow("key-a") {
		t.Fatal("first op for key-a rejected")
	}
	if m.Allow("key-a") {
		t.Fatal("second op for key-a allowed past burst")
	}
	if !m.Allow("key-b") {
		t.Fatal("key-b should not share key-a's bucket")
	}
}

func TestForget(t *testing.T) {
	m := throttle.NewManager(throttle.Config{RateLimit: 0.001, Burst: 1})

	m.Allow("key-1")
	m.Allow("key-1") // exhausts the bucket
	m.Forget("key-1")

	if !m.Allow("key-1") {
		t.Fatal("Forget should reset limiter state")
	}
	if m.Tracked() != 1 {
		t.Errorf("Tracked() = %d, want 1", m.Tracked())
	}
}
