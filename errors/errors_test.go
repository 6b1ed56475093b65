package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSyncErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *SyncError
		want []string
	}{
		{
			name: "with component and code",
			err:  NewTransportError(OpCommit, "queue", fmt.Errorf("connection refused")),
			want: []string{"commit operation failed", "queue component", "TRANSPORT_FAILURE", "connection refused"},
		},
		{
			name: "without component",
			err:  New(OpEnqueue, fmt.Errorf("boom")),
			want: []string{"enqueue operation failed", "boom"},
		},
		{
			name: "conflict usage error",
			err:  NewConflictError(OpResolve, fmt.Errorf("no conflict recorded")),
			want: []string{"conflict_resolve", "CONFLICT_FAILURE", "no conflict recorded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, fragment := range tt.want {
				if !strings.Contains(msg, fragment) {
					t.Errorf("Error() = %q, missing %q", msg, fragment)
				}
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewTransportError(OpRead, "consistency", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var syncErr *SyncError
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.As(wrapped, &syncErr) {
		t.Fatal("errors.As should unwrap to *SyncError")
	}
	if syncErr.Code != ErrCodeTransportFailure {
		t.Errorf("Code = %s, want %s", syncErr.Code, ErrCodeTransportFailure)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewTransportError(OpCommit, "queue", fmt.Errorf("timeout"))) {
		t.Error("transport errors should be retryable")
	}
	if IsRetryable(NewConflictError(OpResolve, fmt.Errorf("bad call"))) {
		t.Error("conflict errors should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain errors should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestExhaustedRetries(t *testing.T) {
	err := NewExhaustedRetriesError(fmt.Errorf("commit failed"), map[string]interface{}{
		"item_id":    "q-1",
		"collection": "appointments",
	})

	if err.Code != ErrCodeRetriesExhausted {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodeRetriesExhausted)
	}
	if err.Kind != KindPermanent {
		t.Errorf("Kind = %s, want %s", err.Kind, KindPermanent)
	}
	if err.Retryable {
		t.Error("exhausted-retries errors must not be retryable")
	}
	if err.Metadata["item_id"] != "q-1" {
		t.Error("metadata should carry the item identity")
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewValidationError(OpEnqueue, fmt.Errorf("empty payload")))
	if got := CodeOf(err); got != ErrCodeValidationFailure {
		t.Errorf("CodeOf = %s, want %s", got, ErrCodeValidationFailure)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %s, want empty", got)
	}
}
