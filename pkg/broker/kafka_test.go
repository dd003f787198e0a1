package broker

import (
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
)

func TestNewWriterSASL(t *testing.T) {
	w := NewWriter(config.Broker{Brokers: []string{"k:9092"}})
	if w.Transport != nil || w.Topic != "" {
		t.Fatalf("plain writer = %+v", w)
	}

	w = NewWriter(config.Broker{Brokers: []string{"k:9092"}, Username: "u", Password: "p"})
	tr, ok := w.Transport.(*kafka.Transport)
	if !ok || tr.SASL == nil || tr.SASL.Name() != "PLAIN" {
		t.Fatalf("transport = %#v", w.Transport)
	}
}

func TestNewReaderConfig(t *testing.T) {
	r := NewReader(config.Broker{Brokers: []string{"k:9092"}, Topic: "payment.events", GroupID: "order-service", Username: "u"})
	defer r.Close()
	cfg := r.Config()
	if cfg.Topic != "payment.events" || cfg.GroupID != "order-service" || cfg.Dialer.SASLMechanism == nil {
		t.Fatalf("config = %+v", cfg)
	}
}
