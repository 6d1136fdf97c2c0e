package audio

import "testing"

func TestPushDrainFIFOOrder(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Push(1, -1)
	rb.Push(2, -2)

	out := make([]float32, 8)
	n := rb.Drain(out)
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	if out[0] != 1 || out[1] != -1 || out[2] != 2 || out[3] != -2 {
		t.Fatalf("unexpected order: %v", out[:4])
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Push(1, 1)
	rb.Push(2, 2)
	rb.Push(3, 3) // drops frame 1

	out := make([]float32, 4)
	n := rb.Drain(out)
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	if out[0] != 2 || out[2] != 3 {
		t.Fatalf("expected oldest frame dropped, got %v", out)
	}
}

func TestAvailableTracksCount(t *testing.T) {
	rb := NewRingBuffer(8)
	if rb.Available() != 0 {
		t.Fatalf("expected empty")
	}
	rb.Push(0, 0)
	rb.Push(0, 0)
	if rb.Available() != 2 {
		t.Fatalf("expected 2, got %d", rb.Available())
	}
	rb.Drain(make([]float32, 2))
	if rb.Available() != 1 {
		t.Fatalf("expected 1 after partial drain, got %d", rb.Available())
	}
}
