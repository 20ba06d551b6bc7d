package events

import (
	"context"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// KafkaWriter publishes events to a kafka topic. One message per event,
// keyed by the event source so frames of one producer stay in order
// within a partition.
type KafkaWriter struct {
	producer sarama.SyncProducer
}

var _ Writer = (*KafkaWriter)(nil)

func NewKafkaWriter(brokers []string, clientID string) (*KafkaWriter, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaWriter{producer: producer}, nil
}

func (w *KafkaWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	data, err := e.MarshalJSON()
	if err != nil {
		return err
	}

	_, _, err = w.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(e.Source()),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

func (w *KafkaWriter) Close(_ context.Context) error {
	return w.producer.Close()
}
