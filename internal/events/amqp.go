package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// session is one broker connection with its publishing channel.
type session struct {
	channel channel
	conn    interface{ Close() error }

	// closed receives (or is closed) when the connection drops.
	closed <-chan *amqp091.Error
}

func (s *session) dead() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.channel.Close()
	if s.conn != nil {
		s.conn.Close()
	}
}

// AMQPPublisher publishes events to a topic exchange, routed by event type.
// A dropped connection is re-dialed on the next Publish.
type AMQPPublisher struct {
	exchange string
	connect  func() (*session, error)

	mu   sync.Mutex // amqp091 channels are not safe for concurrent publishing
	sess *session
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := newPublisher(exchange, func() (*session, error) {
		return dial(url, exchange)
	})
	sess, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.sess = sess
	return p, nil
}

func newPublisher(exchange string, connect func() (*session, error)) *AMQPPublisher {
	return &AMQPPublisher{exchange: exchange, connect: connect}
}

func dial(url, exchange string) (*session, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &session{
		channel: ch,
		conn:    conn,
		closed:  conn.NotifyClose(make(chan *amqp091.Error, 1)),
	}, nil
}

// current returns a live session, re-dialing when the last one was closed. Callers hold p.mu.
func (p *AMQPPublisher) current() (*session, error) {
	if p.sess != nil && p.sess.dead() {
		slog.Warn("AMQP connection lost, reconnecting", "exchange", p.exchange)
		p.sess.close()
		p.sess = nil
	}
	if p.sess == nil {
		sess, err := p.connect()
		if err != nil {
			return nil, fmt.Errorf("reconnect: %w", err)
		}
		p.sess = sess
	}
	return p.sess, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.OccurredAt,
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	// one retry on a fresh session when the channel turned out to be closed
	for attempt := 0; ; attempt++ {
		sess, err := p.current()
		if err != nil {
			return fmt.Errorf("publish %s: %w", e.Type, err)
		}

		err = sess.channel.PublishWithContext(
			ctx,
			p.exchange, // exchange
			e.Type,     // routing key
			false,      // mandatory
			false,      // immediate
			msg,
		)
		if err == nil {
			break
		}
		if !errors.Is(err, amqp091.ErrClosed) || attempt > 0 {
			return fmt.Errorf("publish %s: %w", e.Type, err)
		}
		sess.close()
		p.sess = nil
	}

	slog.DebugContext(ctx, "published event", "type", e.Type, "user_id", e.UserID, "exchange", p.exchange)
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return nil
	}
	p.sess.channel.Close()
	var err error
	if p.sess.conn != nil {
		err = p.sess.conn.Close()
	}
	p.sess = nil
	return err
}
