package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Do(t *testing.T) {
	transient := Transient(errors.New("leader switched"))
	permanent := errors.New("syntax error")

	type testcase struct {
		name      string
		policy    RetryPolicy
		failures  []error
		wantRuns  int
		wantErr   error
		exhausted bool
	}

	tests := [...]testcase{
		{
			name:     "first try",
			policy:   fastRetry(3),
			wantRuns: 1,
		},
		{
			name:     "recovers",
			policy:   fastRetry(3),
			failures: []error{transient, transient},
			wantRuns: 3,
		},
		{
			name:     "permanent surfaces immediately",
			policy:   fastRetry(3),
			failures: []error{permanent},
			wantRuns: 1,
			wantErr:  permanent,
		},
		{
			name:      "bounded",
			policy:    fastRetry(2),
			failures:  []error{transient, transient, transient, transient},
			wantRuns:  3,
			wantErr:   transient,
			exhausted: true,
		},
		{
			name:     "disabled",
			policy:   NoRetry(),
			failures: []error{transient},
			wantRuns: 1,
			wantErr:  transient,
		},
		{
			name:     "misuse is never retried",
			policy:   fastRetry(3),
			failures: []error{Transient(newError(ErrUnexpectedRollback, PhaseCommit, "movies", nil))},
			wantRuns: 1,
			wantErr:  ErrUnexpectedRollback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := 0
			err := tt.policy.Do(context.Background(), func(context.Context) error {
				runs++
				if runs <= len(tt.failures) {
					return tt.failures[runs-1]
				}
				return nil
			})

			require.Equal(t, tt.wantRuns, runs)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			if tt.exhausted {
				require.ErrorIs(t, err, ErrRetriesExhausted)
			} else {
				require.NotErrorIs(t, err, ErrRetriesExhausted)
			}
		})
	}
}

func TestRetryPolicy_callerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := RetryPolicy{MaxRetries: 10, BaseDelay: time.Hour}
	runs := 0
	err := p.Do(ctx, func(context.Context) error {
		runs++
		cancel()
		return Transient(errors.New("deadlock"))
	})

	require.Equal(t, 1, runs)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrRetriesExhausted)
}
