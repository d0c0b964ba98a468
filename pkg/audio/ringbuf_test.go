package audio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func seq(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestSampleRingPushPop(t *testing.T) {
	r := newSampleRing(8)

	if ev := r.Push(seq(0, 5)); ev != 0 {
		t.Fatalf("Push evicted %d, want 0", ev)
	}
	if got := r.Len(); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}

	dst := make([]float32, 3)
	if n := r.Pop(dst); n != 3 {
		t.Fatalf("Pop = %d, want 3", n)
	}
	if diff := cmp.Diff([]float32{0, 1, 2}, dst); diff != "" {
		t.Errorf("Pop contents (-want +got):\n%s", diff)
	}
	if got := r.Len(); got != 2 {
		t.Errorf("Len after pop = %d, want 2", got)
	}
}

func TestSampleRingWrapAround(t *testing.T) {
	r := newSampleRing(8)
	r.Push(seq(0, 6))
	r.Pop(make([]float32, 6))

	// head is now mid-buffer; this push wraps.
	r.Push(seq(100, 6))
	dst := make([]float32, 6)
	if n := r.Pop(dst); n != 6 {
		t.Fatalf("Pop = %d, want 6", n)
	}
	if diff := cmp.Diff(seq(100, 6), dst); diff != "" {
		t.Errorf("wrapped contents (-want +got):\n%s", diff)
	}
}

func TestSampleRingEvictsOldest(t *testing.T) {
	r := newSampleRing(2048)
	r.Push(seq(0, 2048))

	// One more sample forces an evictChunk-sized drop of the oldest.
	ev := r.Push([]float32{9999})
	if ev != evictChunk {
		t.Fatalf("Push evicted %d, want %d", ev, evictChunk)
	}
	if got := r.Len(); got != 2048-evictChunk+1 {
		t.Fatalf("Len = %d, want %d", got, 2048-evictChunk+1)
	}

	dst := make([]float32, 1)
	r.Pop(dst)
	if dst[0] != float32(evictChunk) {
		t.Errorf("oldest surviving sample = %v, want %v", dst[0], float32(evictChunk))
	}
}

func TestSampleRingOversizedPushKeepsNewest(t *testing.T) {
	r := newSampleRing(4)
	ev := r.Push(seq(0, 10))
	if ev != 6 {
		t.Fatalf("Push evicted %d, want 6", ev)
	}
	dst := make([]float32, 4)
	if n := r.Pop(dst); n != 4 {
		t.Fatalf("Pop = %d, want 4", n)
	}
	if diff := cmp.Diff([]float32{6, 7, 8, 9}, dst); diff != "" {
		t.Errorf("newest window (-want +got):\n%s", diff)
	}
}

func TestSampleRingPopShortLeavesRestUntouched(t *testing.T) {
	r := newSampleRing(8)
	r.Push(seq(0, 2))

	dst := []float32{-1, -1, -1, -1}
	if n := r.Pop(dst); n != 2 {
		t.Fatalf("Pop = %d, want 2", n)
	}
	if diff := cmp.Diff([]float32{0, 1, -1, -1}, dst); diff != "" {
		t.Errorf("short pop (-want +got):\n%s", diff)
	}
}

func TestSampleRingClear(t *testing.T) {
	r := newSampleRing(8)
	r.Push(seq(0, 4))
	r.Clear()
	if got := r.Len(); got != 0 {
		t.Errorf("Len after Clear = %d, want 0", got)
	}
	if n := r.Pop(make([]float32, 4)); n != 0 {
		t.Errorf("Pop after Clear = %d, want 0", n)
	}
}
