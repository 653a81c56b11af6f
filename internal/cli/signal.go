package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Interrupts cancels its context on the first SIGINT or SIGTERM so in-flight
// conversions can drain, and calls the force callback on the second.
type Interrupts struct {
	context.Context

	cancel context.CancelFunc
	sigCh  chan os.Signal
	force  func()
	stop   sync.Once

	mu    sync.Mutex
	first os.Signal
}

// WatchInterrupts starts listening. force may be nil.
func WatchInterrupts(parent context.Context, force func()) *Interrupts {
	ctx, cancel := context.WithCancel(parent)
	in := &Interrupts{
		Context: ctx,
		cancel:  cancel,
		sigCh:   make(chan os.Signal, 2),
		force:   force,
	}
	signal.Notify(in.sigCh, os.Interrupt, syscall.SIGTERM)
	go in.loop()
	return in
}

func (in *Interrupts) loop() {
	for sig := range in.sigCh {
		in.mu.Lock()
		second := in.first != nil
		if !second {
			in.first = sig
		}
		in.mu.Unlock()

		if !second {
			in.cancel()
			continue
		}
		if in.force != nil {
			in.force()
		}
		return
	}
}

// Signal returns the signal that cancelled the context, or nil.
func (in *Interrupts) Signal() os.Signal {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.first
}

// Stop releases the signal handler and cancels the context.
func (in *Interrupts) Stop() {
	in.stop.Do(func() {
		signal.Stop(in.sigCh)
		close(in.sigCh)
		in.cancel()
	})
}
