package popopt

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Interrupt records that the operator asked us to stop. It is checked between stages;
// running tools are never killed and their stages stay partial until the next run decides
// what to do with them.
type Interrupt struct {
	acknowledged atomic.Bool
}

// Acknowledge marks the interrupt as received
func (i *Interrupt) Acknowledge() {
	i.acknowledged.Store(true)
}

// Acknowledged returns true once an interrupt was received
func (i *Interrupt) Acknowledged() bool {
	return i != nil && i.acknowledged.Load()
}

// Checkpoint returns ErrInterrupted if an interrupt was received
func (i *Interrupt) Checkpoint() error {
	if i.Acknowledged() {
		return ErrInterrupted
	}
	return nil
}

// NotifyInterrupt acknowledges i on SIGINT and SIGTERM instead of terminating the process.
// The handler does no cleanup. Call stop to restore the default behaviour.
func NotifyInterrupt(i *Interrupt) (stop func()) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				log.WithField("signal", sig.String()).Warn("interrupt received, waiting for running builds to finish")
				i.Acknowledge()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
