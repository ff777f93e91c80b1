// Package service holds the outbound integrations of the gate: today the
// RabbitMQ event publisher.
package service

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/gate-redemption/internal/model"
    "github.com/iliyamo/gate-redemption/internal/queue"
)

const publishTimeout = 5 * time.Second

// Publisher sends domain events to RabbitMQ.  Events are best effort:
// they are published after the ticket change committed and a failure is
// only logged.
type Publisher struct {
    url    string
    logger *slog.Logger
    wg     sync.WaitGroup
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
    if logger == nil {
        logger = slog.Default()
    }
    return &Publisher{url: url, logger: logger}
}

// TicketAdmitted publishes a ticket.admitted event without delaying the
// scanner's response.
func (p *Publisher) TicketAdmitted(ctx context.Context, o model.Outcome) {
    p.async(ctx, queue.TicketAdmittedQueue, admittedEvent(o))
}

// OverrideRecorded publishes an override.recorded event.
func (p *Publisher) OverrideRecorded(ctx context.Context, e model.OverrideLogEntry) {
    p.async(ctx, queue.OverrideRecordedQueue, overrideEvent(e))
}

// Wait blocks until in-flight publishes finished.  Called on shutdown.
func (p *Publisher) Wait() { p.wg.Wait() }

func (p *Publisher) async(ctx context.Context, queueName string, event any) {
    p.wg.Add(1)
    go func() {
        defer p.wg.Done()
        ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
        defer cancel()
        if err := p.Publish(ctx, queueName, event); err != nil {
            p.logger.Warn("event not published", "queue", queueName, "error", err)
        }
    }()
}

// Publish declares queueName (durable) and publishes event as a
// persistent JSON message on the default exchange.
func (p *Publisher) Publish(ctx context.Context, queueName string, event any) error {
    body, err := json.Marshal(event)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }
    conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(publishTimeout)})
    if err != nil {
        return fmt.Errorf("dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    err = ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
    if err != nil {
        return fmt.Errorf("publish: %w", err)
    }
    return nil
}

func admittedEvent(o model.Outcome) queue.TicketAdmittedEvent {
    ev := queue.TicketAdmittedEvent{
        TicketID:   o.TicketID,
        HolderName: o.HolderName,
        Category:   string(o.Category),
        Occasion:   o.Occasion,
    }
    if o.RedeemedAt != nil {
        ev.AdmittedAt = o.RedeemedAt.UTC()
    }
    return ev
}

func overrideEvent(e model.OverrideLogEntry) queue.OverrideRecordedEvent {
    return queue.OverrideRecordedEvent{
        EntryID:       e.ID,
        TicketID:      e.TicketID,
        Action:        string(e.Action),
        Justification: e.Justification,
        OperatorID:    e.OperatorID,
        Occasion:      e.Occasion,
        RecordedAt:    e.CreatedAt.UTC(),
    }
}
