package tokens

import "testing"

func TestCount(t *testing.T) {
	counter, err := NewCounter("gpt-4.1-nano")
	if err != nil {
		t.Fatalf("NewCounter failed: %v", err)
	}

	if got := counter.Count(""); got != 0 {
		t.Errorf("empty string counted as %d tokens", got)
	}

	short := counter.Count("hello")
	long := counter.Count("Tell me about a time your grandfather surprised the whole family.")
	if short <= 0 {
		t.Errorf("expected positive count for short text, got %d", short)
	}
	if long <= short {
		t.Errorf("expected longer text to count more tokens: short=%d long=%d", short, long)
	}
}

func TestCountNilCounter(t *testing.T) {
	var counter *Counter
	if got := counter.Count("12345678"); got != 2 {
		t.Errorf("nil counter fallback: expected 2, got %d", got)
	}
}

func TestEstimate(t *testing.T) {
	if got := Estimate("12345678"); got != 2 {
		t.Errorf("Estimate: expected 2, got %d", got)
	}
}
