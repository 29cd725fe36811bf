package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"golang.org/x/sync/errgroup"

	"docgen/internal/logging"
)

type SaramaDriver struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup
}

func init() { Register("sarama", func() Adapter { return &SaramaDriver{} }) }

func (d *SaramaDriver) Configure(config Config) error {
	config.Defaults()
	if err := config.Validate(); err != nil {
		return err
	}
	d.cfg = config

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

// Run consumes until ctx is cancelled or the group fails.
func (d *SaramaDriver) Run(ctx context.Context, fn HandleFunc) error {
	if d.group == nil {
		return errors.New("kafka: driver not configured")
	}
	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()

	handler := &groupHandler{cfg: d.cfg, fn: fn}
	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	var errs []error
	if d.group != nil {
		errs = append(errs, d.group.Close())
	}
	if d.cl != nil && !d.cl.Closed() {
		errs = append(errs, d.cl.Close())
	}
	return errors.Join(errs...)
}

type groupHandler struct {
	cfg Config
	fn  HandleFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (*groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	return nil
}

// ConsumeClaim renders up to cfg.Concurrency records of one partition at a
// time. A record is marked once it and every earlier record are done.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	cp := NewTracker[*sarama.ConsumerMessage](h.cfg.Checkpoint.CommitInt)

	var g errgroup.Group
	g.SetLimit(h.cfg.Concurrency)

	defer func() {
		_ = g.Wait()
		if n := cp.Pending(); n > 0 {
			logging.L().Info("sarama-driver: claim released with records in flight", "topic", claim.Topic(), "partition", claim.Partition(), "count", n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			resolve := cp.Track(msg)
			g.Go(func() error {
				h.handle(ctx, msg)
				if mark, ok, due := resolve(); ok {
					sess.MarkMessage(mark, "")
					if due {
						sess.Commit()
					}
				}
				return nil
			})
		}
	}
}

func (h *groupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	log := logging.L().With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	req, err := RequestFromMessage(msg)
	if err != nil {
		log.Warn("sarama-driver: skipping record", "err", err)
		return
	}
	if err := h.fn(ctx, req); err != nil {
		log.Error("sarama-driver: render failed", "document", req.Document, "correlation_id", req.CorrelationID, "err", err)
	}
}
