package reboot

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/types"
)

func TestFiresOnRebootIDIncrease(t *testing.T) {
	tr := NewTracker()
	tr.Start()
	defer tr.Stop()

	var fired int32
	tr.CallMeOnChange("PRMR-a", 5, "caller1", func() { atomic.AddInt32(&fired, 1) })

	tr.UpdateObserved(map[types.ServerID]uint64{"PRMR-a": 5})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 0 }, 100*time.Millisecond, 10*time.Millisecond)

	tr.UpdateObserved(map[types.ServerID]uint64{"PRMR-a": 6})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 10*time.Millisecond)
}

func TestFiresOnceOnlyForSameRegistration(t *testing.T) {
	tr := NewTracker()
	tr.Start()
	defer tr.Stop()

	var fired int32
	tr.CallMeOnChange("PRMR-a", 5, "caller1", func() { atomic.AddInt32(&fired, 1) })

	tr.UpdateObserved(map[types.ServerID]uint64{"PRMR-a": 6})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 10*time.Millisecond)

	tr.UpdateObserved(map[types.ServerID]uint64{"PRMR-a": 7})
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&fired), "registration must not fire twice")
}

func TestFiresOnDeregistration(t *testing.T) {
	tr := NewTracker()
	tr.Start()
	defer tr.Stop()

	var fired int32
	tr.CallMeOnChange("PRMR-a", 5, "caller1", func() { atomic.AddInt32(&fired, 1) })

	tr.UpdateObserved(map[types.ServerID]uint64{})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 10*time.Millisecond)
}

func TestCancelPreventsDispatch(t *testing.T) {
	tr := NewTracker()
	tr.Start()
	defer tr.Stop()

	var fired int32
	cancel := tr.CallMeOnChange("PRMR-a", 5, "caller1", func() { atomic.AddInt32(&fired, 1) })
	cancel()

	tr.UpdateObserved(map[types.ServerID]uint64{"PRMR-a": 9})
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&fired))
	require.Equal(t, 0, tr.PendingCount())
}

func TestMultipleTagsIndependent(t *testing.T) {
	tr := NewTracker()
	tr.Start()
	defer tr.Stop()

	var firedA, firedB int32
	tr.CallMeOnChange("PRMR-a", 5, "tagA", func() { atomic.AddInt32(&firedA, 1) })
	tr.CallMeOnChange("PRMR-a", 5, "tagB", func() { atomic.AddInt32(&firedB, 1) })
	require.Equal(t, 2, tr.PendingCount())

	tr.UpdateObserved(map[types.ServerID]uint64{"PRMR-a": 6})
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&firedA) == 1 && atomic.LoadInt32(&firedB) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, tr.PendingCount())
}
