package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	amqp "github.com/rabbitmq/amqp091-go"
)

const queue = "pushes"

// Очередь wake-up уведомлений
type RabbitPush struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	Msg  <-chan amqp.Delivery
}

type PushMessage struct {
	PushToken string `json:"pushToken"`
}

func dial() (*amqp.Connection, *amqp.Channel, error) {
	// config
	rabbiturl := os.Getenv("RABBIT_URL")
	if rabbiturl == "" {
		return nil, nil, fmt.Errorf("env RABBIT_URL is not set")
	}
	rabbitport := os.Getenv("RABBIT_PORT")
	if rabbitport == "" {
		return nil, nil, fmt.Errorf("env RABBIT_PORT is not set")
	}
	rabbituser := os.Getenv("RABBIT_USER")
	if rabbituser == "" {
		return nil, nil, fmt.Errorf("env RABBIT_USER is not set")
	}
	rabbitpass := os.Getenv("RABBIT_PASSWORD")
	if rabbitpass == "" {
		return nil, nil, fmt.Errorf("env RABBIT_PASSWORD is not set")
	}

	rabbitconn := "amqp://" + rabbituser + ":" + rabbitpass + "@" + rabbiturl + ":" + rabbitport + "/wallet"
	conn, err := amqp.Dial(rabbitconn)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	_, err = ch.QueueDeclare(
		queue, // name
		false, // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Публикация wake-up сообщений (сторона сервера)
func NewRabbitPublisher() (*RabbitPush, error) {
	conn, ch, err := dial()
	if err != nil {
		return nil, err
	}
	return &RabbitPush{conn, ch, nil}, nil
}

// Чтение wake-up сообщений (сторона воркера доставки)
func NewRabbitConsumer() (*RabbitPush, error) {
	conn, ch, err := dial()
	if err != nil {
		return nil, err
	}
	msg, err := ch.Consume(
		queue, // queue
		"",    // consumer
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPush{conn, ch, msg}, nil
}

func (r *RabbitPush) Close() {
	r.ch.Close()
	r.conn.Close()
}

// отправка wake-up в очередь
func (r *RabbitPush) Notify(ctx context.Context, pushToken string) error {
	msg, err := json.Marshal(&PushMessage{pushToken})
	if err != nil {
		return err
	}

	err = r.ch.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg,
		})
	if err != nil {
		return err
	}
	return nil
}
