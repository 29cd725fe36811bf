// Package kafka consumes render requests from kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
)

// Request headers read from every consumed record.
const (
	HeaderLanguage      = "language"
	HeaderTransform     = "transform"
	HeaderContentType   = "content-type"
	HeaderCorrelationID = "correlation-id"
)

// Request asks for one document to be generated from Input.
type Request struct {
	Document      string
	Language      string
	Transform     bool
	ContentType   string // of Input; XML when empty
	CorrelationID string
	Input         []byte

	Topic     string
	Partition int32
	Offset    int64
}

// HandleFunc renders one request. Errors are logged by the driver; the
// record is considered consumed either way.
type HandleFunc func(context.Context, *Request) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, HandleFunc) error
	Close() error
}

var errNoDocument = errors.New("kafka: record has no key naming the document")

// RequestFromMessage decodes a consumed record: the key names the document,
// the value is the input and headers carry the options.
func RequestFromMessage(msg *sarama.ConsumerMessage) (*Request, error) {
	doc := strings.TrimSpace(string(msg.Key))
	if doc == "" {
		return nil, errNoDocument
	}
	req := &Request{
		Document:  doc,
		Transform: true,
		Input:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		v := string(h.Value)
		switch strings.ToLower(string(h.Key)) {
		case HeaderLanguage:
			req.Language = v
		case HeaderTransform:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("kafka: header %s: %w", HeaderTransform, err)
			}
			req.Transform = b
		case HeaderContentType:
			req.ContentType = v
		case HeaderCorrelationID:
			req.CorrelationID = v
		}
	}
	return req, nil
}
