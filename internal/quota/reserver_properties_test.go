package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runReserverProperties drives one backend through the window and release
// contract every Reserver must satisfy. Each subtest uses its own account
// ids so the suite can run against a shared store.
func runReserverProperties(t *testing.T, newReserver func(t *testing.T) Reserver) {
	t.Run("concurrent reserve never oversubscribes", func(t *testing.T) {
		const limit = 4
		const extra = 12
		r := newReserver(t)
		now := time.Now()

		var wg sync.WaitGroup
		results := make(chan bool, limit+extra)
		for i := 0; i < limit+extra; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := r.Reserve(context.Background(), 101, limit, now)
				assert.NoError(t, err)
				results <- res.Reserved
			}()
		}
		wg.Wait()
		close(results)

		reserved := 0
		for ok := range results {
			if ok {
				reserved++
			}
		}
		assert.Equal(t, limit, reserved)
	})

	t.Run("sliding window boundaries", func(t *testing.T) {
		r := newReserver(t)
		t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

		res, err := r.Reserve(context.Background(), 102, 1, t0)
		require.NoError(t, err)
		require.True(t, res.Reserved)

		// 1ms before expiry the slot still counts
		count, err := r.CountActive(context.Background(), 102, t0.Add(Window-time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		denied, err := r.Reserve(context.Background(), 102, 1, t0.Add(Window-time.Millisecond))
		require.NoError(t, err)
		assert.False(t, denied.Reserved)

		// 1ms past expiry it does not
		count, err = r.CountActive(context.Background(), 102, t0.Add(Window+time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		res, err = r.Reserve(context.Background(), 102, 1, t0.Add(Window+time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Reserved)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		r := newReserver(t)
		now := time.Now()

		res, err := r.Reserve(context.Background(), 103, 5, now)
		require.NoError(t, err)
		require.True(t, res.Reserved)

		ok, err := r.Release(context.Background(), 103, res.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.Release(context.Background(), 103, res.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release after consume reports not released", func(t *testing.T) {
		r := newReserver(t)
		now := time.Now()

		res, err := r.Reserve(context.Background(), 104, 5, now)
		require.NoError(t, err)
		require.True(t, res.Reserved)

		ok, err := r.Consume(context.Background(), 104, res.ID, "thread-9", "Summary of the thread.")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = r.Release(context.Background(), 104, res.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		// the consumed slot still counts toward the window
		count, err := r.CountActive(context.Background(), 104, now)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("accounts are isolated", func(t *testing.T) {
		r := newReserver(t)
		now := time.Now()

		res, err := r.Reserve(context.Background(), 105, 1, now)
		require.NoError(t, err)
		require.True(t, res.Reserved)

		other, err := r.Reserve(context.Background(), 106, 1, now)
		require.NoError(t, err)
		assert.True(t, other.Reserved)
	})
}
