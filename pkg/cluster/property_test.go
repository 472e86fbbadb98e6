package cluster

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// These tests exercise ConnectionEntry's two exclusive-winner races -
// freezing and probe admission - under a randomized number of concurrent
// callers and a randomized choice of freeze reason, rather than against one
// fixed goroutine count. Both properties must hold for every trial, not
// just in expectation, so a failure here points at a genuine race rather
// than bad luck in a fixed scenario.

var freezeReasons = []FreezeReason{FreezeSystemShutdown, FreezeReconnect, FreezeManual}

// P3: freeze monotonicity - no matter how many goroutines race Freeze with
// no matter what reasons, exactly one call wins, and FreezeReason reflects
// that winner's reason, never a blend or a later overwrite.
func TestProperty_FreezeMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for trial := 0; trial < 50; trial++ {
		e := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 3)
		n := 2 + rng.Intn(18)

		type outcome struct {
			reason FreezeReason
			won    bool
		}
		results := make([]outcome, n)
		chosen := make([]FreezeReason, n)
		for i := range chosen {
			chosen[i] = freezeReasons[rng.Intn(len(freezeReasons))]
		}

		var wg sync.WaitGroup
		wg.Add(n)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			i := i
			go func() {
				defer wg.Done()
				<-start
				results[i] = outcome{reason: chosen[i], won: e.Freeze(chosen[i])}
			}()
		}
		close(start)
		wg.Wait()

		winners := 0
		var winningReason FreezeReason
		for _, r := range results {
			if r.won {
				winners++
				winningReason = r.reason
			}
		}
		assert.Equal(t, 1, winners, "trial %d: exactly one Freeze call must win", trial)
		assert.True(t, e.Frozen())
		assert.Equal(t, winningReason, e.FreezeReason(), "trial %d: FreezeReason must match the sole winner", trial)
	}
}

// P4: probe uniqueness - no matter how many goroutines race
// markProbeStart, at most one holds the probe slot at a time, and the slot
// is reusable once released.
func TestProperty_ProbeUniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for trial := 0; trial < 50; trial++ {
		e := NewConnectionEntry("127.0.0.1:0", RoleMaster, 10, 3)
		n := 2 + rng.Intn(18)

		var wins sync.WaitGroup
		wins.Add(n)
		var mu sync.Mutex
		winCount := 0
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			go func() {
				defer wins.Done()
				<-start
				if e.markProbeStart() {
					mu.Lock()
					winCount++
					mu.Unlock()
				}
			}()
		}
		close(start)
		wins.Wait()

		assert.Equal(t, 1, winCount, "trial %d: exactly one concurrent markProbeStart may win", trial)
		assert.False(t, e.markProbeStart(), "trial %d: the slot stays held until markProbeDone", trial)

		e.markProbeDone()
		assert.True(t, e.markProbeStart(), "trial %d: a fresh probe may start once the prior one finished", trial)
		e.markProbeDone()
	}
}
