package ratelimit

import (
	"testing"
	"time"
)

func TestBlockedAfterFiveFailures(t *testing.T) {
	l := New()
	for i := 0; i < 4; i++ {
		l.RecordFailure("10.0.0.1")
	}
	if l.Blocked("10.0.0.1") {
		t.Fatal("should not be blocked after only 4 failures")
	}
	l.RecordFailure("10.0.0.1")
	if !l.Blocked("10.0.0.1") {
		t.Fatal("should be blocked after 5 failures")
	}
}

func TestOtherIPsUnaffected(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		l.RecordFailure("10.0.0.1")
	}
	if l.Blocked("10.0.0.2") {
		t.Error("an unrelated IP should never be blocked")
	}
}

func TestSuccessClearsCounter(t *testing.T) {
	l := New()
	for i := 0; i < 4; i++ {
		l.RecordFailure("10.0.0.1")
	}
	l.RecordSuccess("10.0.0.1")
	l.RecordFailure("10.0.0.1")
	if l.Blocked("10.0.0.1") {
		t.Error("counter should have reset after a success")
	}
}

func TestBlockExpires(t *testing.T) {
	l := New()
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	for i := 0; i < 5; i++ {
		l.RecordFailure("10.0.0.1")
	}
	if !l.Blocked("10.0.0.1") {
		t.Fatal("should be blocked immediately after tripping")
	}

	fakeNow = fakeNow.Add(61 * time.Second)
	if l.Blocked("10.0.0.1") {
		t.Error("block should have expired after 60s")
	}
}
