package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type incrementAction struct{ by int }

func (incrementAction) ActionName() string { return "increment" }

func TestDispatcherAppliesReducerInOrder(t *testing.T) {
	d := New(map[string]interface{}{"counter": 0})
	d.Register("counter", func(prev interface{}, full *Snapshot, w Wrapped) interface{} {
		inc, ok := w.Action.(incrementAction)
		if !ok {
			return prev
		}
		return prev.(int) + inc.by
	})
	d.Start()
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Dispatch(incrementAction{by: 1})
	}

	require.Eventually(t, func() bool {
		return d.Snapshot().Slice("counter") == 5
	}, time.Second, time.Millisecond)
}

func TestDispatcherUnregisteredSliceUnaffected(t *testing.T) {
	d := New(map[string]interface{}{"counter": 0, "untouched": "value"})
	d.Register("counter", func(prev interface{}, full *Snapshot, w Wrapped) interface{} {
		return prev.(int) + 1
	})
	d.Start()
	defer d.Stop()

	d.Dispatch(incrementAction{by: 1})

	require.Eventually(t, func() bool {
		return d.Snapshot().Slice("counter") == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "value", d.Snapshot().Slice("untouched"))
}

func TestSubscribeReceivesSnapshotAfterDispatch(t *testing.T) {
	d := New(map[string]interface{}{"counter": 0})
	d.Register("counter", func(prev interface{}, full *Snapshot, w Wrapped) interface{} {
		return prev.(int) + 1
	})
	d.Start()
	defer d.Stop()

	ch := d.Subscribe()
	defer d.Unsubscribe(ch)

	d.Dispatch(incrementAction{by: 1})

	select {
	case snap := <-ch:
		assert.Equal(t, 1, snap.Slice("counter"))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestDispatchReturnsDistinctIDs(t *testing.T) {
	d := New(map[string]interface{}{})
	d.Start()
	defer d.Stop()

	id1 := d.Dispatch(incrementAction{by: 1})
	id2 := d.Dispatch(incrementAction{by: 1})
	assert.NotEqual(t, id1, id2)
}
