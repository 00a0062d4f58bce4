package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/platform/metrics"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrNoRecipient = errors.New("notification has no recipient")
)

// Notifier queues a templated message for delivery.
type Notifier interface {
	Notify(ctx context.Context, templateID, to string, data map[string]string) error
}

type message struct {
	templateID string
	to         string
	data       map[string]string
}

// Dispatcher renders and sends messages on a background goroutine so request
// handlers never wait on the mail API.
type Dispatcher struct {
	sender    EmailSender
	templates *TemplateEngine
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	queue  chan message
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(sender EmailSender, templates *TemplateEngine, m *metrics.Metrics, logger zerolog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		sender:    sender,
		templates: templates,
		metrics:   m,
		logger:    logger,
		queue:     make(chan message, queueSize),
	}
}

// Notify validates the template and enqueues the message without blocking.
func (d *Dispatcher) Notify(_ context.Context, templateID, to string, data map[string]string) error {
	if to == "" {
		return ErrNoRecipient
	}
	if _, _, err := d.templates.Render(templateID, nil); err != nil {
		return err
	}
	select {
	case d.queue <- message{templateID: templateID, to: to, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the delivery loop. It is a no-op when already running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		d.run(ctx)
	}()
}

// Stop cancels the loop, delivers what is already queued and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg message) {
	subject, body, err := d.templates.Render(msg.templateID, msg.data)
	if err == nil {
		err = d.sender.SendEmail(ctx, msg.to, subject, body)
	}
	d.metrics.MailSent(err == nil)
	if err != nil {
		d.logger.Error().Err(err).Str("template", msg.templateID).Msg("notification delivery failed")
		return
	}
	d.logger.Debug().Str("template", msg.templateID).Msg("notification delivered")
}
