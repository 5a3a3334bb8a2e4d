package ratelimit

import "testing"

func TestAllowDrainsBucket(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("prov", 3, 0) {
			t.Fatalf("request %d denied with tokens left", i)
		}
	}
	if l.Allow("prov", 3, 0) {
		t.Fatal("request allowed on empty bucket")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0) {
		t.Fatal("first request for a denied")
	}
	if l.Allow("a", 1, 0) {
		t.Fatal("second request for a allowed")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatal("first request for b denied")
	}
}
