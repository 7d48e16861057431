package popopt

import (
	"errors"
	"testing"
)

func TestInterrupt(t *testing.T) {
	var nilIntr *Interrupt
	if nilIntr.Acknowledged() {
		t.Error("nil interrupt must never be acknowledged")
	}

	intr := &Interrupt{}
	if err := intr.Checkpoint(); err != nil {
		t.Errorf("Checkpoint() = %v before interrupt", err)
	}

	intr.Acknowledge()
	if err := intr.Checkpoint(); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Checkpoint() = %v, want %v", err, ErrInterrupted)
	}

	stop := NotifyInterrupt(&Interrupt{})
	stop()
}
