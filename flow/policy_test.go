package flow

import (
	"testing"
	"time"
)

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"minimal", RetryPolicy{MaxAttempts: 1}, false},
		{"full", RetryPolicy{MaxAttempts: 5, Backoff: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Minute}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"negative attempts", RetryPolicy{MaxAttempts: -1}, true},
		{"unknown backoff", RetryPolicy{MaxAttempts: 2, Backoff: "quadratic"}, true},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	base := 100 * time.Millisecond
	maxJitter := base / 2

	t.Run("fixed", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 5, Backoff: BackoffFixed, BaseDelay: base}
		for attempt := 1; attempt <= 4; attempt++ {
			d := rp.delay(attempt)
			if d < base || d > base+maxJitter {
				t.Errorf("delay(%d) = %v, want within [%v, %v]", attempt, d, base, base+maxJitter)
			}
		}
	})

	t.Run("linear", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 5, Backoff: BackoffLinear, BaseDelay: base}
		for attempt := 1; attempt <= 4; attempt++ {
			want := base * time.Duration(attempt)
			d := rp.delay(attempt)
			if d < want || d > want+maxJitter {
				t.Errorf("delay(%d) = %v, want within [%v, %v]", attempt, d, want, want+maxJitter)
			}
		}
	})

	t.Run("exponential doubles", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 5, Backoff: BackoffExponential, BaseDelay: base}
		for attempt, want := range map[int]time.Duration{1: base, 2: 2 * base, 3: 4 * base} {
			d := rp.delay(attempt)
			if d < want || d > want+maxJitter {
				t.Errorf("delay(%d) = %v, want within [%v, %v]", attempt, d, want, want+maxJitter)
			}
		}
	})

	t.Run("empty shape defaults to exponential", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 5, BaseDelay: base}
		d := rp.delay(3)
		if d < 4*base {
			t.Errorf("delay(3) = %v, want >= %v", d, 4*base)
		}
	})

	t.Run("max delay caps growth", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 10, Backoff: BackoffExponential, BaseDelay: base, MaxDelay: 150 * time.Millisecond}
		d := rp.delay(8)
		if d > rp.MaxDelay+maxJitter {
			t.Errorf("delay(8) = %v, want <= %v", d, rp.MaxDelay+maxJitter)
		}
	})

	t.Run("zero base means no wait", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 3, Backoff: BackoffFixed}
		if d := rp.delay(1); d != 0 {
			t.Errorf("delay(1) = %v, want 0", d)
		}
	})

	t.Run("huge attempt does not overflow", func(t *testing.T) {
		rp := RetryPolicy{MaxAttempts: 100, Backoff: BackoffExponential, BaseDelay: time.Nanosecond, MaxDelay: time.Second}
		if d := rp.delay(99); d < 0 || d > time.Second+maxJitter {
			t.Errorf("delay(99) = %v, want capped non-negative", d)
		}
	})
}
