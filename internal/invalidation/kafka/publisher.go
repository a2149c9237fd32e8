package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/vtile-cache/internal/invalidation"
)

// Publisher writes invalidation events to a topic. Messages are keyed by
// tileset so events of one tileset stay ordered on one partition.
type Publisher struct {
	prod  sarama.SyncProducer
	topic string
	codec invalidation.Codec
}

func NewPublisher(prod sarama.SyncProducer, topic string, c invalidation.Codec) *Publisher {
	if c == nil {
		c = invalidation.JSON{}
	}
	return &Publisher{prod: prod, topic: topic, codec: c}
}

// DialPublisher connects a sync producer to brokers.
func DialPublisher(brokers []string, topic string, c invalidation.Codec) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "vtile-cache-invalidate"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return NewPublisher(prod, topic, c), nil
}

func (p *Publisher) message(e invalidation.Event) (*sarama.ProducerMessage, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	b, err := p.codec.Encode(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.codec.ContentType(), err)
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.Tileset),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte(p.codec.ContentType())},
		},
	}, nil
}

// Publish validates, encodes and sends e. It returns the partition and
// offset the broker assigned.
func (p *Publisher) Publish(e invalidation.Event) (int32, int64, error) {
	msg, err := p.message(e)
	if err != nil {
		return 0, 0, err
	}
	part, off, err := p.prod.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("send: %w", err)
	}
	return part, off, nil
}

func (p *Publisher) Close() error { return p.prod.Close() }
