package audio

import "testing"

func TestHistory_LatestPadsFront(t *testing.T) {
	h := NewHistory(8, 16000)
	h.Write([]int16{1, 2, 3})

	latest := h.Latest(5)
	expected := []int16{0, 0, 1, 2, 3}
	for i := range expected {
		if latest[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, latest)
		}
	}
	if h.Len() != 3 {
		t.Errorf("Expected length 3, got %d", h.Len())
	}
}

func TestHistory_Overwrites(t *testing.T) {
	h := NewHistory(4, 16000)
	h.Write([]int16{1, 2, 3})
	h.Write([]int16{4, 5, 6})

	latest := h.Latest(4)
	expected := []int16{3, 4, 5, 6}
	for i := range expected {
		if latest[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, latest)
		}
	}
	if h.Len() != 4 {
		t.Errorf("Expected full length 4, got %d", h.Len())
	}
}

func TestHistory_LargeWrite(t *testing.T) {
	h := NewHistory(3, 16000)
	h.Write([]int16{1, 2, 3, 4, 5})

	latest := h.Latest(3)
	if latest[0] != 3 || latest[2] != 5 {
		t.Errorf("Expected [3 4 5], got %v", latest)
	}
	h.Write([]int16{6})
	latest = h.Latest(2)
	if latest[0] != 5 || latest[1] != 6 {
		t.Errorf("Expected [5 6], got %v", latest)
	}
}

func TestHistory_LatestDoesNotConsume(t *testing.T) {
	h := NewHistory(4, 16000)
	h.Write([]int16{7, 8})

	first := h.Latest(2)
	second := h.Latest(2)
	if first[1] != 8 || second[1] != 8 {
		t.Errorf("Expected repeated reads to see the same samples, got %v and %v", first, second)
	}

	latest := h.Latest(2)
	latest[0] = 99
	if h.Latest(2)[0] != 7 {
		t.Error("Expected Latest to return a copy")
	}
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(4, 8000)
	h.Write([]int16{1, 2, 3, 4, 5})
	h.Clear()

	if h.Len() != 0 {
		t.Errorf("Expected empty history, got %d", h.Len())
	}
	for _, s := range h.Latest(4) {
		if s != 0 {
			t.Fatal("Expected zeros after clear")
		}
	}
	if h.SampleRate() != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", h.SampleRate())
	}
}
