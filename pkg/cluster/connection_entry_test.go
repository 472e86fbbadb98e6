package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionEntry_TryAcquireRespectsHeadroom(t *testing.T) {
	e := NewConnectionEntry("127.0.0.1:0", RoleMaster, 2, 3)

	assert.True(t, e.TryAcquire())
	assert.True(t, e.TryAcquire())
	assert.False(t, e.TryAcquire(), "third acquire should fail: maxConns is 2")

	e.ReleaseSlot()
	assert.True(t, e.TryAcquire(), "releasing a slot should free headroom")
}

func TestConnectionEntry_TryAcquireRejectsAboveThreshold(t *testing.T) {
	e := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 2)
	e.IncFailed()
	e.IncFailed()
	assert.False(t, e.TryAcquire(), "failedAttempts has reached the threshold")

	e.ResetFailed()
	assert.True(t, e.TryAcquire())
}

func TestConnectionEntry_FreezeIsIdempotent(t *testing.T) {
	e := NewConnectionEntry("127.0.0.1:0", RoleReplica, 10, 3)

	assert.True(t, e.Freeze(FreezeReconnect))
	assert.False(t, e.Freeze(FreezeManual), "second Freeze call must not win")
	assert.Equal(t, FreezeReconnect, e.FreezeReason())

	e.Unfreeze()
	assert.False(t, e.Frozen())
	assert.Equal(t, FreezeNone, e.FreezeReason())
	assert.True(t, e.Freeze(FreezeManual), "Freeze should succeed again after Unfreeze")
}

func TestConnectionEntry_AcquisitionEligible(t *testing.T) {
	master := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 3)
	master.Freeze(FreezeSystemShutdown)
	assert.True(t, master.AcquisitionEligible(), "a master frozen for shutdown stays eligible")

	replica := NewConnectionEntry("127.0.0.1:0", RoleReplica, 10, 3)
	replica.Freeze(FreezeSystemShutdown)
	assert.False(t, replica.AcquisitionEligible(), "a replica is never eligible while frozen")

	master2 := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 3)
	master2.Freeze(FreezeReconnect)
	assert.False(t, master2.AcquisitionEligible(), "a master frozen for reconnect is not eligible")
}

func TestConnectionEntry_ProbeInFlightIsExclusive(t *testing.T) {
	e := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 3)
	assert.True(t, e.markProbeStart())
	assert.False(t, e.markProbeStart(), "a second probe must not start concurrently")
	e.markProbeDone()
	assert.True(t, e.markProbeStart(), "a new probe may start once the prior one finished")
}

func TestConnectionEntry_ReleaseOnlyReturnsHealthyConnections(t *testing.T) {
	e := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 3)
	e.TryAcquire()
	e.Release(nil, false)
	e.ReleaseSlot()
	assert.Equal(t, 0, e.Stats().Idle, "an unhealthy release must not be added to the idle set")
}
