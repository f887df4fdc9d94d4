package validation

import (
	"fmt"
	"sync"

	"github.com/zsiec/tsingest/internal/ingestion/mpegts"
)

// ContinuityValidator tracks MPEG-TS continuity counters per PID
type ContinuityValidator struct {
	mu       sync.RWMutex
	counters map[uint16]*continuityState
	stats    ContinuityStats
}

type continuityState struct {
	lastCounter     uint8
	initialized     bool
	discontinuities int64
}

// ContinuityStats contains continuity validation statistics
type ContinuityStats struct {
	TotalDiscontinuities int64
	PIDs                 int
	PacketsValidated     int64
}

// NewContinuityValidator creates a new continuity validator
func NewContinuityValidator() *ContinuityValidator {
	return &ContinuityValidator{
		counters: make(map[uint16]*continuityState),
	}
}

// Validate checks the continuity counter of pkt against the previous packet
// on the same PID. Null packets are ignored. A repeated counter on a
// payload packet is a legal duplicate; an adaptation-only packet must not
// advance the counter.
func (v *ContinuityValidator) Validate(pkt mpegts.Packet) error {
	if pkt.PID == mpegts.PIDNull {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	state, exists := v.counters[pkt.PID]
	if !exists {
		state = &continuityState{}
		v.counters[pkt.PID] = state
	}
	v.stats.PacketsValidated++

	counter := pkt.ContinuityCounter
	if !state.initialized {
		state.lastCounter = counter
		state.initialized = true
		return nil
	}

	if !pkt.HasPayload() {
		if counter != state.lastCounter {
			return v.discontinuity(state, pkt.PID, state.lastCounter, counter)
		}
		return nil
	}

	expected := (state.lastCounter + 1) & 0x0F
	if counter == expected || counter == state.lastCounter {
		state.lastCounter = counter
		return nil
	}
	return v.discontinuity(state, pkt.PID, expected, counter)
}

func (v *ContinuityValidator) discontinuity(state *continuityState, pid uint16, expected, got uint8) error {
	state.discontinuities++
	v.stats.TotalDiscontinuities++
	state.lastCounter = got
	return fmt.Errorf("continuity error for PID 0x%04x: expected %d, got %d", pid, expected, got)
}

// GetStats returns continuity validation statistics
func (v *ContinuityValidator) GetStats() ContinuityStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	stats := v.stats
	stats.PIDs = len(v.counters)
	return stats
}

// GetPIDStats returns the discontinuity count of one PID.
func (v *ContinuityValidator) GetPIDStats(pid uint16) (int64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	state, exists := v.counters[pid]
	if !exists {
		return 0, false
	}
	return state.discontinuities, true
}

// Reset clears all continuity counters
func (v *ContinuityValidator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.counters = make(map[uint16]*continuityState)
	v.stats = ContinuityStats{}
}
