// Package publish forwards every reading to an MQTT broker.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

// Stats counts what happened to tapped readings.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

type item struct {
	desc    sensor.Descriptor
	reading sensor.Reading
}

// Publisher is a measurement tap that publishes readings from its own
// goroutine. OnSample never blocks: readings arriving while the buffer is
// full are dropped and counted.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
	dial   func(ctx context.Context, address string) (net.Conn, error)

	buf chan item

	mu     sync.Mutex
	client *paho.Client
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates a disconnected publisher.
func New(cfg Config, logger *slog.Logger) *Publisher {
	cfg = cfg.withDefaults()
	var d net.Dialer
	return &Publisher{
		cfg:    cfg,
		logger: logging.Or(logger, "publish").With("broker", cfg.Broker),
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", address)
		},
		buf: make(chan item, cfg.Buffer),
	}
}

// OnSample queues a reading for publishing.
func (p *Publisher) OnSample(d sensor.Descriptor, r sensor.Reading) {
	select {
	case p.buf <- item{desc: d, reading: r.Clone()}:
	default:
		p.dropped.Add(1)
	}
}

// Start connects to the broker and begins publishing. It is a no-op when
// already connected.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancelConnect()

	conn, err := p.dial(connectCtx, p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", p.cfg.Broker, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: p.cfg.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			p.logger.Warn("mqtt client error", "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			p.logger.Warn("broker disconnected", "reason", d.ReasonCode)
		},
	})

	if _, err := client.Connect(connectCtx, &paho.Connect{
		ClientID:   p.cfg.ClientID,
		KeepAlive:  uint16(p.cfg.KeepAlive / time.Second),
		CleanStart: true,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("connect to broker %s: %w", p.cfg.Broker, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.client = client
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(runCtx, client, p.done)

	p.logger.Info("publishing readings", "prefix", p.cfg.TopicPrefix, "format", p.cfg.Format)
	return nil
}

// Close publishes what is buffered, then disconnects.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}

	p.cancel()
	<-p.done

	err := p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	p.client = nil
	p.cancel = nil
	p.done = nil

	st := p.Stats()
	p.logger.Info("publisher closed", "published", st.Published, "dropped", st.Dropped, "failed", st.Failed)
	return err
}

// Stats returns the publish counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Publisher) run(ctx context.Context, client *paho.Client, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			p.drain(client)
			return
		case it := <-p.buf:
			p.publish(client, it)
		}
	}
}

func (p *Publisher) drain(client *paho.Client) {
	for {
		select {
		case it := <-p.buf:
			p.publish(client, it)
		default:
			return
		}
	}
}

func (p *Publisher) publish(client *paho.Client, it item) {
	payload, err := Encode(newMessage(it.desc, it.reading), p.cfg.Format)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("failed to encode reading", "sensor", it.desc.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
	defer cancel()

	_, err = client.Publish(ctx, &paho.Publish{
		Topic:   Topic(p.cfg.TopicPrefix, it.desc.Name),
		QoS:     p.cfg.QoS,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: contentType(p.cfg.Format),
		},
	})
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("publish failed", "sensor", it.desc.Name, "error", err)
		return
	}
	p.published.Add(1)
}
