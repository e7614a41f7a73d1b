package tracker

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Structured event lines the tracker writes to stdout. The UI process
// subscribes to these to update status labels and flash the taskbar.
// Format: __<kind>__:stint_tracker:<event>.
const (
	EventStintCreated         = "stint_created"
	EventReturnToGarage       = "return_to_garage"
	EventPlayerInGarage       = "player_in_garage"
	EventRegistrationConflict = "registration_conflict"
)

// Emitter writes the tracker's structured event lines.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter creates an emitter. A nil writer means stdout.
func NewEmitter(w io.Writer) *Emitter {
	if w == nil {
		w = os.Stdout
	}
	return &Emitter{w: w}
}

// Event emits an __event__ line.
func (e *Emitter) Event(name string) { e.emit("event", name) }

// Info emits an __info__ line.
func (e *Emitter) Info(name string) { e.emit("info", name) }

// Warning emits a __warning__ line.
func (e *Emitter) Warning(name string) { e.emit("warning", name) }

// Error emits an __error__ line.
func (e *Emitter) Error(name string) { e.emit("error", name) }

func (e *Emitter) emit(kind, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "__%s__:stint_tracker:%s\n", kind, name)
}
