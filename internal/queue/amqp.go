package queue

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

// AmqpQueue satisfies Queue over RabbitMQ so the dispatcher and the
// worker binary can live in separate processes.
type AmqpQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAmqpQueue(url string) (*AmqpQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AmqpQueue{conn: conn, ch: ch}, nil
}

func (q *AmqpQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AmqpQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

// Publish marshals the payload to JSON; subscribers receive raw bytes.
func (q *AmqpQueue) Publish(topic string, payload any) error {
	if _, err := q.declare(topic); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *AmqpQueue) Subscribe(topic string, handler func(payload any) error) error {
	if _, err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				log.Println("failed to process message:", err)
				// Requeue up to 3 times
				var retryCount int
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = int(v)
				}
				if retryCount < 3 {
					d.Nack(false, true)
					continue
				}
			}
			d.Ack(false)
		}
	}()

	return nil
}
