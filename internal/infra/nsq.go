// README: NSQ producer used to publish subscription and route lifecycle events as JSON.
package infra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
)

// Producer publishes JSON-encoded events to nsqd.
type Producer struct {
	producer *nsq.Producer
	log      logrus.FieldLogger
}

// NewProducer connects to nsqd at addr. It returns (nil, nil) when addr is
// empty so callers can run without a broker.
func NewProducer(addr string, log logrus.FieldLogger) (*Producer, error) {
	if addr == "" {
		return nil, nil
	}
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	if err := p.Ping(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("ping nsqd %s: %w", addr, err)
	}
	p.SetLoggerLevel(nsq.LogLevelWarning)
	return &Producer{producer: p, log: log}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	if err := p.producer.Publish(topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.WithField("topic", topic).Debug("event published")
	return nil
}

func (p *Producer) Stop() {
	p.producer.Stop()
}
