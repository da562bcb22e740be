package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/venue-reassignment/internal/events"
)

// ErrPublisherClosed is returned by Run after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Publisher is a bus listener that forwards events to a durable queue.
// Notify never blocks the coordinator: events go to a bounded buffer and
// are dropped with a log line when it is full or the broker is down for
// too long.
type Publisher struct {
    url   string
    queue string

    buf       chan MoveEvent
    done      chan struct{}
    closeOnce sync.Once

    // publish sends one body; replaced in tests.
    publish func(ctx context.Context, body []byte) error

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewPublisher returns a publisher for queue on the broker at url.  buffer
// values below 1 default to 256.
func NewPublisher(url, queue string, buffer int) *Publisher {
    if queue == "" {
        queue = DefaultQueue
    }
    if buffer < 1 {
        buffer = 256
    }
    p := &Publisher{
        url:   url,
        queue: queue,
        buf:   make(chan MoveEvent, buffer),
        done:  make(chan struct{}),
    }
    p.publish = p.publishAMQP
    return p
}

// Notify implements events.Listener.
func (p *Publisher) Notify(e events.Event) {
    select {
    case <-p.done:
        return
    default:
    }
    select {
    case p.buf <- FromEvent(e):
    default:
        log.Printf("rabbitmq: buffer full, dropping %s event", e.Type)
    }
}

// Run drains the buffer until ctx ends or Close is called.  A failed
// publish is retried once on a fresh connection before the event is
// dropped.
func (p *Publisher) Run(ctx context.Context) error {
    defer p.disconnect()
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-p.done:
            p.drain()
            return ErrPublisherClosed
        case m := <-p.buf:
            p.send(ctx, m)
        }
    }
}

// Close stops Run after it has flushed what is buffered.
func (p *Publisher) Close() {
    p.closeOnce.Do(func() { close(p.done) })
}

func (p *Publisher) drain() {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    for {
        select {
        case m := <-p.buf:
            p.send(ctx, m)
        default:
            return
        }
    }
}

func (p *Publisher) send(ctx context.Context, m MoveEvent) {
    body, err := json.Marshal(m)
    if err != nil {
        log.Printf("rabbitmq: marshal %s event failed: %v", m.Type, err)
        return
    }
    if err := p.publish(ctx, body); err != nil {
        p.disconnect()
        if err = p.publish(ctx, body); err != nil {
            log.Printf("rabbitmq: publish %s event failed, dropped: %v", m.Type, err)
        }
    }
}

// channel returns an open channel, dialling and declaring the queue when
// there is none.
func (p *Publisher) channel() (*amqp.Channel, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    if p.conn == nil || p.conn.IsClosed() {
        conn, err := amqp.Dial(p.url)
        if err != nil {
            return nil, fmt.Errorf("dial: %w", err)
        }
        p.conn = conn
    }
    ch, err := p.conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("channel open: %w", err)
    }
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    p.ch = ch
    return ch, nil
}

func (p *Publisher) publishAMQP(ctx context.Context, body []byte) error {
    ch, err := p.channel()
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
}

func (p *Publisher) disconnect() {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}
