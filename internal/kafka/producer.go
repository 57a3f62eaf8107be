package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Producer struct {
	w        *kafka.Writer
	log      *logrus.Logger
	topic    string
	inbox    chan kafka.Message
	closeCh  chan struct{}
	stopOnce sync.Once
}

func NewProducer(log *logrus.Logger, brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		log:     log,
		topic:   topic,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.drain()
				p.stop()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.stop()
					return
				}
				p.write(context.Background(), m)
			}
		}
	}()
}

// drain flushes whatever is buffered without closing the inbox; Close may
// already have closed it.
func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				return
			}
			p.write(context.Background(), m)
		default:
			return
		}
	}
}

func (p *Producer) stop() {
	p.stopOnce.Do(func() {
		_ = p.w.Close()
		close(p.closeCh)
	})
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.WithError(err).WithField("topic", p.topic).Error("kafka write failed")
	}
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close stops intake; the loop flushes what is left and exits.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until the flush loop has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
