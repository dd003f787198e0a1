// Package broker builds kafka-go readers and writers from configuration.
package broker

import (
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
)

func mechanism(cfg config.Broker) plain.Mechanism {
	return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
}

// NewReader joins cfg.GroupID on cfg.Topic. SASL/PLAIN is used when a
// username is configured.
func NewReader(cfg config.Broker) *kafka.Reader {
	d := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if cfg.Username != "" {
		d.SASLMechanism = mechanism(cfg)
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:       cfg.Brokers,
		Topic:         cfg.Topic,
		GroupID:       cfg.GroupID,
		Dialer:        d,
		QueueCapacity: max(cfg.ConcurrentMessageLimit, 1),
	})
}

// NewWriter returns a writer without a default topic; every message names its
// own. Keys hash to partitions so one aggregate stays ordered.
func NewWriter(cfg config.Broker) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	if cfg.Username != "" {
		w.Transport = &kafka.Transport{SASL: mechanism(cfg)}
	}
	return w
}
