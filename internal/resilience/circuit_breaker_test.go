package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openBreaker(cb *CircuitBreaker, failures int) {
	for i := 0; i < failures; i++ {
		cb.RecordResult(false)
	}
}

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("stt", 3, time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}
	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("stt", 3, time.Second)

	openBreaker(cb, 2)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}
	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_CallOpenFailsFast(t *testing.T) {
	cb := NewCircuitBreaker("tts", 1, time.Second)
	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected the service not to be called while open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("assistant", 3, 50*time.Millisecond)
	openBreaker(cb, 3)

	time.Sleep(80 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Expected probe %d to pass, got %v", i, err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed after successful probes, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_FailureInHalfOpenReopens(t *testing.T) {
	cb := NewCircuitBreaker("assistant", 3, 50*time.Millisecond)
	openBreaker(cb, 3)

	time.Sleep(80 * time.Millisecond)

	cb.Call(func() error { return errors.New("still down") })
	if cb.GetState() != StateOpen {
		t.Errorf("Expected Open after failed probe, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	cb := NewCircuitBreaker("stt", 1, time.Second)

	err := cb.Call(func() error {
		return fmt.Errorf("transcribe: %w", context.Canceled)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancellation to pass through, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Error("Expected cancellation not to open the circuit")
	}
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	cb := NewCircuitBreaker("tts", 2, time.Second)
	var transitions []string
	cb.OnStateChange(func(name string, from, to CircuitState) {
		transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
	})

	openBreaker(cb, 2)
	cb.Reset()

	expected := []string{"tts:closed->open", "tts:open->closed"}
	if len(transitions) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, transitions)
	}
	for i := range expected {
		if transitions[i] != expected[i] {
			t.Errorf("Expected %s, got %s", expected[i], transitions[i])
		}
	}
}

func TestExecute(t *testing.T) {
	cb := NewCircuitBreaker("assistant", 3, time.Second)

	text, err := Execute(cb, func() (string, error) {
		return "Try the Feynman technique.", nil
	})
	if err != nil || text != "Try the Feynman technique." {
		t.Errorf("Expected value passthrough, got %q, %v", text, err)
	}

	_, err = Execute(cb, func() (string, error) {
		return "", errors.New("status 500")
	})
	if err == nil {
		t.Error("Expected error passthrough")
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("stt", 3, time.Second)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()
	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}

func TestCircuitBreaker_ResetAndHealthCheck(t *testing.T) {
	cb := NewCircuitBreaker("stt", 3, time.Second)
	openBreaker(cb, 3)

	if ok, err := cb.HealthCheck(context.Background()); ok || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected unhealthy open breaker, got %v, %v", ok, err)
	}

	cb.Reset()
	state, requestCount, failureCount, _ := cb.GetStats()
	if state != StateClosed || requestCount != 0 || failureCount != 0 {
		t.Error("Expected stats to be reset")
	}
	if ok, _ := cb.HealthCheck(context.Background()); !ok {
		t.Error("Expected healthy closed breaker")
	}
}
