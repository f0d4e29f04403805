package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("counts attempts of retried call", func(t *testing.T) {
		reg := NewRegistry(fastSettings(), nil)
		p := reg.Pipeline("event")

		calls := 0
		out, err := p.Execute(ctx, func(context.Context) error {
			calls++
			if calls == 1 {
				return ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Attempts)
	})

	t.Run("deadline bounds all attempts", func(t *testing.T) {
		s := fastSettings()
		s.Timeout = 30 * time.Millisecond
		p := NewRegistry(s, nil).Pipeline("event")

		out, err := p.Execute(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, out.Attempts, 1)
		assert.Less(t, out.Duration, time.Second)
	})

	t.Run("breaker counts one outcome per retried call", func(t *testing.T) {
		reg := NewRegistry(fastSettings(), nil)
		p := reg.Pipeline("event")

		for i := 0; i < 4; i++ {
			out, err := p.Execute(ctx, func(context.Context) error { return ErrConflict })
			require.ErrorIs(t, err, ErrConflict)
			assert.Equal(t, 3, out.Attempts)
		}
		assert.Equal(t, StateClosed, p.Breaker().State())

		_, _ = p.Execute(ctx, func(context.Context) error { return ErrConflict })
		assert.Equal(t, StateOpen, p.Breaker().State())

		calls := 0
		out, err := p.Execute(ctx, func(context.Context) error {
			calls++
			return nil
		})
		require.ErrorIs(t, err, ErrCircuitOpen)
		assert.Zero(t, out.Attempts)
		assert.Zero(t, calls)
	})

	t.Run("non transient error passes through", func(t *testing.T) {
		p := NewRegistry(fastSettings(), nil).Pipeline("event")
		bug := errors.New("mapper bug")

		out, err := p.Execute(ctx, func(context.Context) error { return bug })
		require.ErrorIs(t, err, bug)
		assert.Equal(t, 1, out.Attempts)
	})
}

func TestRegistryBreakerPerName(t *testing.T) {
	var changed []string
	s := fastSettings()
	s.OnStateChange = func(name string, _, to State) {
		changed = append(changed, name+":"+to.String())
	}
	reg := NewRegistry(s, nil)
	ctx := context.Background()

	assert.Same(t, reg.Breaker("event"), reg.Breaker("event"))
	assert.NotSame(t, reg.Breaker("event"), reg.Breaker("category"))

	for i := 0; i < 5; i++ {
		_ = reg.Breaker("event").Execute(ctx, failWith(ErrConflict))
	}

	states := reg.States()
	assert.Equal(t, StateOpen, states["event"])
	assert.Equal(t, StateClosed, states["category"])
	assert.Equal(t, []string{"event:open"}, changed)
}
