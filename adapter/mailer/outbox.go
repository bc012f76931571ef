package mailer

import (
	"context"
	"sync"

	"go.llib.dev/frameless/pkg/contextkit"
	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/port/mail"
)

const ErrOutboxFull errorkit.Error = "email outbox is full"

const DefaultOutboxSize = 64

// Outbox queues messages and delivers them from Run,
// so callers never wait on a provider.
type Outbox struct {
	Sender mail.Sender
	Size   int

	init  sync.Once
	queue chan mail.Message
}

var _ mail.Sender = (*Outbox)(nil)

func (o *Outbox) q() chan mail.Message {
	o.init.Do(func() {
		size := o.Size
		if size <= 0 {
			size = DefaultOutboxSize
		}
		o.queue = make(chan mail.Message, size)
	})
	return o.queue
}

// Send queues the message. It fails only when the queue is full.
func (o *Outbox) Send(ctx context.Context, msg mail.Message) error {
	select {
	case o.q() <- msg:
		return nil
	default:
		return ErrOutboxFull.F("to %s", msg.To)
	}
}

// Run delivers queued messages until ctx is done,
// then delivers what is still queued before returning.
func (o *Outbox) Run(ctx context.Context) error {
	q := o.q()
	for {
		select {
		case msg := <-q:
			o.deliver(ctx, msg)
		case <-ctx.Done():
			o.drain(contextkit.Detach(ctx))
			return nil
		}
	}
}

func (o *Outbox) drain(ctx context.Context) {
	for {
		select {
		case msg := <-o.q():
			o.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, msg mail.Message) {
	if err := o.Sender.Send(ctx, msg); err != nil {
		logger.Error(ctx, "email delivery failed",
			logging.ErrField(err),
			logging.Field("to", msg.To),
			logging.Field("subject", msg.Subject))
	}
}
