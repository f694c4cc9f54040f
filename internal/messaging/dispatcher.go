package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultErrorReply is sent to the user when the handler fails, so a backend
// problem never leaves the chat silent.
const defaultErrorReply = "😞 Something went wrong on our side. Please try again in a moment."

// handleTimeout bounds how long a single inbound message may take to process.
const handleTimeout = 30 * time.Second

// MessageHandler processes one inbound chat message.
type MessageHandler func(ctx context.Context, chatID, text string) error

// Dispatcher pumps inbound responses from a messaging Service into a
// MessageHandler. It decouples transport polling from conversation logic.
type Dispatcher struct {
	svc     Service
	handler MessageHandler
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher wiring svc's responses to handler.
func NewDispatcher(svc Service, handler MessageHandler) *Dispatcher {
	return &Dispatcher{svc: svc, handler: handler}
}

// Start launches the dispatch loop. It returns immediately; the loop runs
// until ctx is cancelled or the service's response channel closes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		slog.Info("Dispatcher started")
		for {
			select {
			case <-ctx.Done():
				slog.Info("Dispatcher stopped", "reason", ctx.Err())
				return
			case resp, ok := <-d.svc.Responses():
				if !ok {
					slog.Info("Dispatcher response channel closed")
					return
				}
				d.dispatch(ctx, resp.From, resp.Body)
			}
		}
	}()
}

// Wait blocks until the dispatch loop has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, chatID, text string) {
	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if err := d.handler(handleCtx, chatID, text); err != nil {
		slog.Error("Dispatcher handler failed", "chatID", chatID, "error", err)
		if sendErr := d.svc.SendMessage(handleCtx, chatID, defaultErrorReply); sendErr != nil {
			slog.Error("Dispatcher error reply failed", "chatID", chatID, "error", sendErr)
		}
	}
}
