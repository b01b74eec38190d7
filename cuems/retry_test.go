package cuems

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Delay: Linear(500 * time.Millisecond)}

	tests := []struct {
		attempt int
		delay   time.Duration
		ok      bool
	}{
		{1, 500 * time.Millisecond, true},
		{2, time.Second, true},
		{3, 0, false},
	}
	for _, tt := range tests {
		d, ok := p.NextDelay(tt.attempt)
		if d != tt.delay || ok != tt.ok {
			t.Errorf("NextDelay(%d) = %v, %v; want %v, %v", tt.attempt, d, ok, tt.delay, tt.ok)
		}
	}

	unlimited := RetryPolicy{Delay: Fixed(time.Second)}
	if d, ok := unlimited.NextDelay(1000); !ok || d != time.Second {
		t.Errorf("unlimited policy stopped: %v, %v", d, ok)
	}
}

func TestRetryPolicyDo(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Delay: Fixed(time.Millisecond)}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err %v after %d calls", err, calls)
	}

	boom := errors.New("boom")
	err = p.Do(context.Background(), func(int) error { return boom })
	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, boom) {
		t.Errorf("err = %v, want exhausted wrapping boom", err)
	}
}

func TestRetryPolicyDoCancelled(t *testing.T) {
	p := RetryPolicy{Delay: Fixed(time.Hour)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(int) error { return errors.New("fail") })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(defaultWait):
		t.Fatal("Do did not return after cancel")
	}
}
