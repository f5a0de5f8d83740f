package progress

import (
	"encoding/json"
	"io"
	"math"
	"sync"
)

// Emitter writes structured events, one per line. Repeated progress at the
// same whole percent for the same phase is dropped.
type Emitter struct {
	mu        sync.Mutex
	w         io.Writer
	lastPhase Phase
	lastPct   int
}

// NewEmitter writes to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, lastPct: -1}
}

// Progress reports phase-local progress. frames and total may be zero.
func (e *Emitter) Progress(phase Phase, percent float64, frames, total int) error {
	if e == nil {
		return nil
	}
	pct := int(math.Floor(min(max(percent, 0), 100)))

	e.mu.Lock()
	defer e.mu.Unlock()
	if phase == e.lastPhase && pct == e.lastPct {
		return nil
	}
	e.lastPhase = phase
	e.lastPct = pct
	return e.write(Event{V: Version, Type: TypeProgress, Phase: phase, Percent: float64(pct), Frames: frames, TotalFrames: total})
}

// Error reports a fatal job error.
func (e *Emitter) Error(message string) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.write(Event{V: Version, Type: TypeError, Message: message})
}

func (e *Emitter) write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = e.w.Write(data)
	return err
}
