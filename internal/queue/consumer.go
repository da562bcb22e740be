package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/venue-reassignment/internal/repository"
)

// JournalWriter stores journal entries.  *repository.JournalRepo
// satisfies it.
type JournalWriter interface {
    Insert(ctx context.Context, e *repository.JournalEntry) error
}

// StartJournalConsumer consumes the move-event queue and writes journaled
// events through w.  It reconnects with exponential backoff up to 30s and
// returns only when ctx ends.
func StartJournalConsumer(ctx context.Context, url, queue string, w JournalWriter) error {
    if queue == "" {
        queue = DefaultQueue
    }
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Printf("journal-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, queue, w)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("journal-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, w JournalWriter) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("journal-consumer: set QoS failed: %v", err)
    }
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := HandleMessage(ctx, d.Body, w); err != nil {
                log.Printf("journal-consumer: handle message failed: %v", err)
                // Malformed payloads are dropped; storage failures go back
                // to the queue.
                _ = d.Nack(false, !errors.Is(err, errMalformed))
                continue
            }
            _ = d.Ack(false)
        }
    }
}

var errMalformed = errors.New("malformed move event")

// HandleMessage decodes one payload and journals it when its type is
// kept.  Other event types are acknowledged without a write.
func HandleMessage(ctx context.Context, body []byte, w JournalWriter) error {
    var m MoveEvent
    if err := json.Unmarshal(body, &m); err != nil {
        return fmt.Errorf("%w: %v", errMalformed, err)
    }
    if m.Type == "" {
        return fmt.Errorf("%w: missing type", errMalformed)
    }
    if !m.Journaled() {
        return nil
    }
    at, err := time.Parse(time.RFC3339Nano, m.OccurredAt)
    if err != nil {
        return fmt.Errorf("%w: occurred_at: %v", errMalformed, err)
    }
    entry := &repository.JournalEntry{
        EventType:     m.Type,
        ReservationID: m.ReservationID,
        Date:          m.Date,
        ActionKind:    m.ActionKind,
        FurnitureIDs:  m.FurnitureIDs,
        ErrorType:     m.ErrorType,
        Message:       m.Message,
        PoolSize:      m.PoolSize,
        OccurredAt:    at,
    }
    if err := w.Insert(ctx, entry); err != nil {
        return fmt.Errorf("journal insert: %w", err)
    }
    return nil
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
