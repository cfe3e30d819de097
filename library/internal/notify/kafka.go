package notify

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/metrics"
	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const sinkKafka = "kafka"

type kafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaNotifier publishes events to topic; a Relay forwards them to the sink.
func NewKafkaNotifier(producer sarama.SyncProducer, topic string) Notifier {
	return &kafkaNotifier{
		producer: producer,
		topic:    topic,
	}
}

func (q *kafkaNotifier) Notify(_ context.Context, event model.BorrowingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.BorrowingID, 10)),
		Value: sarama.ByteEncoder(data),
	}
	_, _, err = q.producer.SendMessage(msg)
	metrics.ObserveNotification(sinkKafka, err)
	return errors.Wrap(err, "producer.SendMessage")
}

// Relay consumes borrowing events and hands them to the sink.
type Relay struct {
	sink  Notifier
	log   *zap.Logger
	ready chan bool
}

func NewRelay(sink Notifier, log *zap.Logger) *Relay {
	return &Relay{
		sink:  sink,
		log:   log.Named("relay"),
		ready: make(chan bool),
	}
}

func (consumer *Relay) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-consumer.ready:
	default:
		close(consumer.ready)
	}
	return nil
}

func (consumer *Relay) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Relay) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var event model.BorrowingEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				consumer.log.Error("json.Unmarshal", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}
			// delivery is best effort, a failed message is not retried
			if err := consumer.sink.Notify(session.Context(), event); err != nil {
				consumer.log.Warn("sink.Notify", zap.Int64("borrowing_id", event.BorrowingID), zap.Error(err))
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
