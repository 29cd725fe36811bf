package kafka

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/IBM/sarama"

	"docgen/internal/logging"
	"docgen/sink"
)

// Record headers set on every published document.
const (
	HeaderContentType   = "content-type"
	HeaderFilename      = "filename"
	HeaderCorrelationID = "correlation-id"
)

type Config struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	Acks     int16    `koanf:"required_acks"` // 0,1,-1
	ClientID string   `koanf:"client_id"`
	Version  string   `koanf:"version"`
	// MaxMessageBytes caps a published document; sarama's default when 0.
	MaxMessageBytes int `koanf:"max_message_bytes"`
}

// Publisher buffers each document and publishes it as one record, keyed by
// the document name, when its writer is closed.
type Publisher struct {
	topic string
	p     sarama.SyncProducer

	once sync.Once
	cerr error
}

// NewPublisher wraps an existing producer.
func NewPublisher(p sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{p: p, topic: topic}
}

func (d *Publisher) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return err
		}
		sc.Version = ver
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.p, d.topic = p, cfg.Topic
	return nil
}

func (d *Publisher) NewDestination(ctx context.Context, document string) (sink.Destination, error) {
	if d.p == nil {
		return nil, errors.New("kafka-sink: not configured")
	}
	return &destination{pub: d, key: document, correlation: sink.CorrelationID(ctx)}, nil
}

func (d *Publisher) Close() error {
	d.once.Do(func() {
		if d.p != nil {
			d.cerr = d.p.Close()
		}
	})
	return d.cerr
}

func (d *Publisher) publish(dst *destination, body []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(dst.key),
		Value: sarama.ByteEncoder(body),
	}
	add := func(k, v string) {
		if v != "" {
			msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
		}
	}
	add(HeaderContentType, dst.ContentType)
	add(HeaderFilename, dst.Filename)
	add(HeaderCorrelationID, dst.correlation)

	partition, offset, err := d.p.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka-sink: publish %s: %w", dst.key, err)
	}
	logging.L().Debug("kafka-sink: published", "document", dst.key, "topic", d.topic,
		"partition", partition, "offset", offset, "bytes", len(body))
	return nil
}

type destination struct {
	sink.Headers
	pub         *Publisher
	key         string
	correlation string
}

func (dst *destination) Writer() io.WriteCloser { return &writer{dst: dst} }

type writer struct {
	dst    *destination
	buf    bytes.Buffer
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

// Close publishes the document.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.dst.pub.publish(w.dst, w.buf.Bytes())
}

// CloseWithError drops the document.
func (w *writer) CloseWithError(err error) error {
	if !w.closed {
		logging.L().Warn("kafka-sink: document dropped", "document", w.dst.key, "err", err)
	}
	w.closed = true
	w.buf.Reset()
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &Publisher{} }) }
