package queue

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

// AMQPPublisher mirrors bus events onto a durable RabbitMQ queue so
// dashboards and other consumers outside the process can follow campaign
// progress in real time.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue amqp.Queue
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		TopicCampaignEvents, // name
		true,                // durable
		false,               // delete when unused
		false,               // exclusive
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: q}, nil
}

// Attach forwards every bus event to RabbitMQ. A publish failure is
// logged and dropped; external mirroring must never stall the engine.
func (p *AMQPPublisher) Attach(bus Bus) {
	bus.Subscribe(TopicCampaignEvents, func(evt Event) {
		body, err := json.Marshal(evt)
		if err != nil {
			log.Println("⚠️ Failed to marshal event:", err)
			return
		}
		err = p.ch.Publish(
			"",
			p.queue.Name,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			},
		)
		if err != nil {
			log.Println("⚠️ Failed to publish event:", err)
		}
	})
}

func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
