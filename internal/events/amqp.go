package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher sends events to a topic exchange from a background worker.
// Publish only enqueues; when the buffer is full the event is dropped and
// logged, so a slow broker never stalls an attempt.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    chan Event
	deliver  func(Event) error
	wg       sync.WaitGroup

	mu     sync.RWMutex // guards closed and the send on queue
	closed bool
}

func NewAMQPPublisher(uri, exchange string, buffer int) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = "assessment.events"
	}
	if buffer <= 0 {
		buffer = 256
	}
	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	log.Printf("event publisher initialized with exchange: %s", exchange)

	p := &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		queue:    make(chan Event, buffer),
	}
	p.deliver = p.send
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// Publish enqueues e. Events published after Close are dropped.
func (p *AMQPPublisher) Publish(_ context.Context, e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Printf("event publisher closed, dropping %s for attempt %s", e.Type, e.AttemptID)
		return
	}
	select {
	case p.queue <- e:
	default:
		log.Printf("event buffer full, dropping %s for attempt %s", e.Type, e.AttemptID)
	}
}

func (p *AMQPPublisher) run() {
	defer p.wg.Done()
	for e := range p.queue {
		if err := p.deliver(e); err != nil {
			log.Printf("publish %s for attempt %s: %v", e.Type, e.AttemptID, err)
		}
	}
}

func (p *AMQPPublisher) send(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.channel.PublishWithContext(ctx,
		p.exchange,     // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    e.At,
			Body:         body,
			Headers: amqp091.Table{
				"event_type":    string(e.Type),
				"attempt_id":    e.AttemptID,
				"assessment_id": e.AssessmentID,
				"learner_id":    e.LearnerID,
			},
		},
	)
}

// Close drains queued events and closes the connection. Calling it again
// is a no-op.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("error closing RabbitMQ channel: %v", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}
