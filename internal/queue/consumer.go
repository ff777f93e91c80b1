package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"
    "unicode"

    amqp "github.com/rabbitmq/amqp091-go"
)

// ErrMalformedEvent marks a message that can never be handled.  It is
// dropped; any other Handle error is requeued.
var ErrMalformedEvent = errors.New("malformed override event")

// OverrideConsumer appends one line per override event to a log file
// that export tooling reads.
type OverrideConsumer struct {
    URL     string
    LogPath string
    Logger  *slog.Logger
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (oc *OverrideConsumer) Run(ctx context.Context) error {
    logger := oc.logger()
    backoff := time.Second
    for {
        conn, err := amqp.Dial(oc.URL)
        if err != nil {
            logger.Warn("override consumer: dial failed", "error", err, "retry_in", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = oc.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        logger.Warn("override consumer: loop ended, reconnecting", "error", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (oc *OverrideConsumer) logger() *slog.Logger {
    if oc.Logger == nil {
        return slog.Default()
    }
    return oc.Logger
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (oc *OverrideConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        return fmt.Errorf("qos: %w", err)
    }
    if _, err := ch.QueueDeclare(OverrideRecordedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, OverrideRecordedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := oc.Handle(d.Body); err != nil {
            requeue := shouldRequeue(err)
            oc.logger().Error("override consumer: handle failed", "error", err, "requeue", requeue)
            if requeue && !sleep(ctx, time.Second) {
                return ctx.Err()
            }
            _ = d.Nack(false, requeue)
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends it to LogPath.
func (oc *OverrideConsumer) Handle(body []byte) error {
    var ev OverrideRecordedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
    }
    if ev.EntryID == "" || ev.TicketID == "" {
        return fmt.Errorf("%w: missing entry or ticket id", ErrMalformedEvent)
    }
    if err := os.MkdirAll(filepath.Dir(oc.LogPath), 0o755); err != nil {
        return fmt.Errorf("mkdir: %w", err)
    }
    f, err := os.OpenFile(oc.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] %s | entry_id=%s | ticket_id=%s | operator=%s | occasion=%s | justification=%s\n",
        ev.RecordedAt.UTC().Format(time.RFC3339), field(ev.Action), field(ev.EntryID), field(ev.TicketID),
        field(ev.OperatorID), field(ev.Occasion), strconv.Quote(ev.Justification))
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// shouldRequeue reports whether a failed message may succeed later, such
// as after a full disk is cleared.
func shouldRequeue(err error) bool {
    return !errors.Is(err, ErrMalformedEvent)
}

// field quotes values that could break the one-line-per-entry format.
func field(s string) string {
    if s == "" {
        return s
    }
    unsafe := strings.ContainsAny(s, `|"`) || strings.IndexFunc(s, func(r rune) bool {
        return unicode.IsSpace(r) || !unicode.IsPrint(r)
    }) >= 0
    if unsafe {
        return strconv.Quote(s)
    }
    return s
}
