package oplog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestBuffer(max int) *Buffer {
	b := NewBuffer(zerolog.Nop())
	b.max = max
	return b
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(10)
	for i := 0; i < 15; i++ {
		b.Append(Entry{Type: TypeSendAttempt, Message: fmt.Sprintf("msg-%d", i)})
	}

	got := b.Query("", 0)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	// The 5 oldest are gone, relative order preserved.
	for i, e := range got {
		want := fmt.Sprintf("msg-%d", i+5)
		if e.Message != want {
			t.Fatalf("entry %d = %q, want %q", i, e.Message, want)
		}
	}
}

func TestQueryBundleFilterIsExact(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(100)
	b.Append(Entry{Bundle: "com.example.app", Message: "a"})
	b.Append(Entry{Bundle: "com.example.app2", Message: "b"})
	b.Append(Entry{Bundle: "com.example.app", Message: "c"})

	got := b.Query("com.example.app", 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "a" || got[1].Message != "c" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestQueryLimitKeepsMostRecent(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(100)
	for i := 0; i < 8; i++ {
		b.Append(Entry{Message: fmt.Sprintf("msg-%d", i)})
	}

	got := b.Query("", 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Message != "msg-5" || got[2].Message != "msg-7" {
		t.Fatalf("unexpected window: %+v", got)
	}
}

func TestQueryEmptyReturnsEmptySlice(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(10)
	if got := b.Query("none", 5); got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestAppendStampsTimeAndMeta(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(10)
	b.Append(Entry{Message: "x"})
	got := b.Query("", 0)[0]
	if got.TS.IsZero() {
		t.Fatal("TS not stamped")
	}
	if got.Meta == nil {
		t.Fatal("Meta not defaulted")
	}
}

func TestConcurrentAppendStaysBounded(t *testing.T) {
	t.Parallel()
	b := newTestBuffer(50)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Append(Entry{Message: "m"})
			}
		}()
	}
	wg.Wait()
	if b.Len() != 50 {
		t.Fatalf("Len = %d, want 50", b.Len())
	}
}
