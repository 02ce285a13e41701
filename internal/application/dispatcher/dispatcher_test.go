package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/investment-billing/internal/domain/event"
)

func TestSubscribe(t *testing.T) {
	d := NewDispatcher(nil)
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Subscribe(event.TypeBillPaid, noop)
	d.Subscribe(event.TypeBillPaid, noop)
	d.SubscribeNamed(event.TypeBillPaid, "alerts", noop)

	assert.Equal(t, []string{"handler-0", "handler-1", "alerts"}, d.Handlers(event.TypeBillPaid))
	assert.Empty(t, d.Handlers(event.TypeCashCallFailed))
}

func TestDispatch(t *testing.T) {
	t.Run("runs handlers in order", func(t *testing.T) {
		d := NewDispatcher(nil)
		var order []string
		d.SubscribeNamed(event.TypeBillUpdated, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "first")
			return nil
		})
		d.SubscribeNamed(event.TypeBillUpdated, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "second")
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeBillUpdated, 1, 0, nil)))
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("stops at first error", func(t *testing.T) {
		d := NewDispatcher(nil)
		boom := errors.New("boom")
		called := false
		d.SubscribeNamed(event.TypeBillUpdated, "failing", func(ctx context.Context, evt *event.Event) error {
			return boom
		})
		d.SubscribeNamed(event.TypeBillUpdated, "skipped", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeBillUpdated, 1, 0, nil))
		assert.ErrorIs(t, err, boom)
		assert.False(t, called)
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		d := NewDispatcher(nil)
		d.Subscribe(event.TypeBillPaid, func(ctx context.Context, evt *event.Event) error {
			panic("unexpected")
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeBillPaid, 1, 0, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler panic")
	})

	t.Run("rejects dispatch after close", func(t *testing.T) {
		d := NewDispatcher(nil)
		require.NoError(t, d.Close())

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeBillPaid, 1, 0, nil))
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, d.Close(), ErrClosed)
	})
}

func TestDispatchAsync(t *testing.T) {
	d := NewDispatcher(nil)
	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		d.Subscribe(event.TypeCashCallFailed, func(ctx context.Context, evt *event.Event) error {
			defer wg.Done()
			count.Add(1)
			return errors.New("ignored")
		})
	}

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeCashCallFailed, 1, 2, nil))
	wg.Wait()
	require.NoError(t, d.Close())

	assert.Equal(t, int32(3), count.Load())
}
