package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("expected %d iterations, got %d", n, counter)
	}
}

func TestForSequentialFallback(t *testing.T) {
	cfg := Config{Enabled: false}

	order := make([]int, 0, 10)
	For(10, func(i int) {
		order = append(order, i)
	}, cfg)

	for i, got := range order {
		if got != i {
			t.Fatalf("sequential fallback out of order at %d: got %d", i, got)
		}
	}
}

func TestForCoversAllIndices(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	seen := make([]atomic.Bool, 100)
	For(100, func(i int) {
		if seen[i].Swap(true) {
			t.Errorf("index %d visited twice", i)
		}
	}, cfg)

	for i := range seen {
		if !seen[i].Load() {
			t.Errorf("index %d never visited", i)
		}
	}
}

func TestFor2(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	For2(12, 7, func(i, j int) {
		if i < 0 || i >= 12 || j < 0 || j >= 7 {
			t.Errorf("index (%d, %d) out of range", i, j)
		}
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 12*7 {
		t.Errorf("expected %d iterations, got %d", 12*7, counter)
	}
}
