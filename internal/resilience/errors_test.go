package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError("openai", errors.New("slow down"), 429), true},
		{"wrapped explicit", fmt.Errorf("chat: %w", NewTransientError("openai", errors.New("x"), 503)), true},
		{"eris wrapped explicit", eris.Wrap(NewTransientError("anthropic", errors.New("x"), 529), "anthropic: chat"), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"overloaded message", errors.New("upstream Overloaded, try later"), true},
		{"plain", errors.New("invalid model"), false},
		{"permanent wins", eris.Wrap(ErrPermanent, "rate limit exceeded for key"), false},
		{"circuit open", eris.Wrap(ErrCircuitOpen, "provider openai"), false},
		{"deadline", context.DeadlineExceeded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFromStatus(t *testing.T) {
	base := errors.New("http error")

	var te *TransientError
	if !errors.As(FromStatus("gemini", base, 503), &te) || te.StatusCode != 503 || te.Provider != "gemini" {
		t.Errorf("503 should wrap as transient, got %#v", te)
	}
	if got := FromStatus("gemini", base, 401); got != base {
		t.Errorf("401 should be returned unchanged, got %v", got)
	}
	if FromStatus("gemini", nil, 500) != nil {
		t.Error("nil error must stay nil")
	}
}
