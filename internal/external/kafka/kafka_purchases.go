package wallet

import (
	"context"
	"fmt"
	"os"

	"github.com/segmentio/kafka-go"
)

// Поток покупок для начисления баллов
type KafkaPurchases struct {
	reader *kafka.Reader
}

func GetNewReader(topic string) (reader *KafkaPurchases, err error) {
	// config
	kafkaurl := os.Getenv("KAFKA_PURCHASES_URL")
	if kafkaurl == "" {
		return nil, fmt.Errorf("env KAFKA_PURCHASES_URL is not set")
	}
	kafkaport := os.Getenv("KAFKA_PURCHASES_PORT")
	if kafkaport == "" {
		return nil, fmt.Errorf("env KAFKA_PURCHASES_PORT is not set")
	}

	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{kafkaurl + ":" + kafkaport},
		Topic:   topic,
		GroupID: "wallet_purchases",
	}
	return &KafkaPurchases{kafka.NewReader(kafkaconfig)}, nil
}

func (k *KafkaPurchases) GetNewMessage(ctx context.Context) (purchaseJson string, err error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	return string(msg.Value), nil
}

func (k *KafkaPurchases) CloseReader() {
	k.reader.Close()
}
