package dedup

import (
	"fmt"
	"testing"
	"time"
)

func TestShouldProcessOncePerTTL(t *testing.T) {
	d := New(50*time.Millisecond, 100)

	if !d.ShouldProcess("msg-1") {
		t.Fatal("first sight must be processed")
	}
	if d.ShouldProcess("msg-1") {
		t.Fatal("repeat inside TTL must be dropped")
	}
	if !d.ShouldProcess("msg-2") {
		t.Fatal("unrelated id must be processed")
	}

	time.Sleep(60 * time.Millisecond)
	if !d.ShouldProcess("msg-1") {
		t.Fatal("repeat after TTL must be processed again")
	}
}

func TestEmptyIDAlwaysProcessed(t *testing.T) {
	d := New(time.Minute, 100)
	if !d.ShouldProcess("") || !d.ShouldProcess("") {
		t.Fatal("empty id must never be deduplicated")
	}
}

func TestForgetAllowsReprocessing(t *testing.T) {
	d := New(time.Minute, 100)

	if !d.ShouldProcess("msg-1") {
		t.Fatal("first sight must be processed")
	}
	d.Forget("msg-1")
	if !d.ShouldProcess("msg-1") {
		t.Fatal("forgotten id must be processed again")
	}
	if d.ShouldProcess("msg-1") {
		t.Fatal("re-recorded id must be dropped")
	}
}

func TestEvictionKeepsMapBounded(t *testing.T) {
	d := New(time.Minute, 10)
	for i := 0; i < 100; i++ {
		d.ShouldProcess(fmt.Sprintf("msg-%d", i))
	}
	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n > 11 {
		t.Fatalf("seen map holds %d entries, cap is 10", n)
	}
}
