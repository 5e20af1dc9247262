package dma

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrHandlerInstalled is returned when an interrupt line already has a handler
var ErrHandlerInstalled = errors.New("dma: interrupt handler already installed")

// InterruptLine delivers DMA interrupt 0 to a single exclusive handler. The
// handler runs on the line's own goroutine and must acknowledge the channels it
// services.
type InterruptLine interface {
	SetHandler(h func()) error
	ClearHandler()
}

// Poller delivers interrupt 0 by polling the masked status register from a
// goroutine locked to its OS thread.
type Poller struct {
	ctrl *Controller

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates an interrupt line for ctrl
func NewPoller(ctrl *Controller) *Poller {
	return &Poller{ctrl: ctrl}
}

// SetHandler starts delivering interrupts to h
func (p *Poller) SetHandler(h func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrHandlerInstalled
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, h, p.done)
	return nil
}

// ClearHandler stops delivery and waits for a running handler to return
func (p *Poller) ClearHandler() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Poller) run(ctx context.Context, h func(), done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.ctrl.IRQ0Status() != 0 {
			h()
			continue
		}
		runtime.Gosched()
	}
}
