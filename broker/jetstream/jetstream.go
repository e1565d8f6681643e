// Package jetstream provides a NATS JetStream broker backend. Each logical
// stream maps to a JetStream stream, each consumer group to a durable pull
// consumer with explicit acknowledgement, and entry ids to stream sequence
// numbers.
package jetstream

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/drblury/streamflow/broker"
)

// BackendName is the name used to register this backend.
const BackendName = "nats-jetstream"

// DefaultAckWait is the default redelivery window for unacknowledged entries.
const DefaultAckWait = 30 * time.Second

func init() {
	broker.RegisterWithCapabilities(BackendName, Build, broker.JetStreamCapabilities)
}

// Build creates a new JetStream client from the shared configuration.
func Build(_ context.Context, cfg broker.Config, logger broker.Logger) (broker.Client, error) {
	config := Config{
		URL:            cfg.GetNATSURL(),
		ConnectTimeout: cfg.GetConnectTimeout(),
		AckWait:        cfg.GetAckWait(),
	}
	return New(config, logger)
}

// Config holds JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// AckWait is the duration after which an unacknowledged entry is
	// redelivered.
	AckWait time.Duration

	// MaxDeliver caps delivery attempts per entry. Zero leaves redelivery
	// uncapped, matching the pipeline's redeliver-indefinitely policy.
	MaxDeliver int

	// Replicas is the number of stream replicas (for clustering).
	Replicas int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Client implements broker.Client on top of NATS JetStream.
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger broker.Logger

	mu       sync.Mutex
	ensured  map[string]bool
	subs     map[string]*nats.Subscription
	inFlight map[string]*nats.Msg

	closed bool
}

// New connects to NATS and initialises a JetStream context.
func New(cfg Config, logger broker.Logger) (*Client, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL, nats.Timeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, &broker.UnavailableError{Op: "connect", Err: err}
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, &broker.UnavailableError{Op: "connect", Err: err}
	}

	return &Client{
		nc:       nc,
		js:       js,
		config:   cfg,
		logger:   logger,
		ensured:  make(map[string]bool),
		subs:     make(map[string]*nats.Subscription),
		inFlight: make(map[string]*nats.Msg),
	}, nil
}

// Append publishes the data field as the message payload, carrying any
// remaining fields as headers. The returned id is the stream sequence.
func (c *Client) Append(_ context.Context, stream string, fields map[string]string) (string, error) {
	if err := c.ensureStream(stream); err != nil {
		return "", err
	}

	headers := nats.Header{}
	var data string
	for k, v := range fields {
		if k == broker.FieldData {
			data = v
			continue
		}
		headers.Set(k, v)
	}

	ack, err := c.js.PublishMsg(&nats.Msg{
		Subject: subjectFor(stream),
		Data:    []byte(data),
		Header:  headers,
	})
	if err != nil {
		return "", &broker.UnavailableError{Op: "append", Stream: stream, Err: err}
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

// EnsureGroup creates a durable pull consumer for the group, delivering new
// entries only (the stream tail). An existing consumer is success.
func (c *Client) EnsureGroup(_ context.Context, stream, group string) error {
	if err := c.ensureStream(stream); err != nil {
		return err
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:       durableFor(group),
		FilterSubject: subjectFor(stream),
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.config.AckWait,
		DeliverPolicy: nats.DeliverNewPolicy,
	}
	if c.config.MaxDeliver > 0 {
		consumerCfg.MaxDeliver = c.config.MaxDeliver
	}

	_, err := c.js.AddConsumer(streamNameFor(stream), consumerCfg)
	if err == nil {
		c.logger.Info("consumer group created", map[string]any{"stream": stream, "group": group})
		return nil
	}
	if errors.Is(err, nats.ErrConsumerNameAlreadyInUse) || strings.Contains(err.Error(), "already in use") {
		c.logger.Debug("consumer group exists", map[string]any{"stream": stream, "group": group})
		return nil
	}
	return &broker.UnavailableError{Op: "ensure_group", Stream: stream, Err: err}
}

// ReadGroup fetches up to count entries from the group's durable consumer,
// waiting up to block. Fetched messages are held in-flight until Ack.
func (c *Client) ReadGroup(ctx context.Context, stream, group, _ string, count int, block time.Duration) ([]broker.Entry, error) {
	if count <= 0 {
		count = 1
	}

	sub, err := c.subscription(stream, group)
	if err != nil {
		return nil, err
	}

	msgs, err := sub.Fetch(count, nats.MaxWait(block))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &broker.UnavailableError{Op: "read_group", Stream: stream, Err: err}
	}

	entries := make([]broker.Entry, 0, len(msgs))
	c.mu.Lock()
	for _, msg := range msgs {
		meta, err := msg.Metadata()
		if err != nil {
			continue
		}
		id := strconv.FormatUint(meta.Sequence.Stream, 10)

		fields := map[string]string{broker.FieldData: string(msg.Data)}
		for k, v := range msg.Header {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}

		c.inFlight[flightKey(stream, group, id)] = msg
		entries = append(entries, broker.Entry{ID: id, Fields: fields})
	}
	c.mu.Unlock()

	return entries, nil
}

// Ack acknowledges an in-flight entry. Ids that are unknown or already
// acknowledged are a no-op; JetStream redelivers anything left unacked once
// the ack-wait window elapses.
func (c *Client) Ack(_ context.Context, stream, group, id string) error {
	key := flightKey(stream, group, id)

	c.mu.Lock()
	msg, ok := c.inFlight[key]
	if ok {
		delete(c.inFlight, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := msg.Ack(); err != nil {
		return &broker.UnavailableError{Op: "ack", Stream: stream, Err: err}
	}
	return nil
}

// Ping reports broker reachability.
func (c *Client) Ping(ctx context.Context) error {
	if !c.nc.IsConnected() {
		return &broker.UnavailableError{Op: "ping", Err: nats.ErrConnectionClosed}
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return &broker.UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]*nats.Subscription)
	c.inFlight = make(map[string]*nats.Msg)
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	c.nc.Close()
	return nil
}

func (c *Client) subscription(stream, group string) (*nats.Subscription, error) {
	key := stream + "/" + group

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, &broker.UnavailableError{Op: "read_group", Stream: stream, Err: errors.New("client closed")}
	}
	if sub, ok := c.subs[key]; ok {
		return sub, nil
	}

	sub, err := c.js.PullSubscribe(subjectFor(stream), durableFor(group), nats.Bind(streamNameFor(stream), durableFor(group)))
	if err != nil {
		return nil, &broker.UnavailableError{Op: "read_group", Stream: stream, Err: err}
	}
	c.subs[key] = sub
	return sub, nil
}

func (c *Client) ensureStream(stream string) error {
	c.mu.Lock()
	if c.ensured[stream] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	streamCfg := &nats.StreamConfig{
		Name:      streamNameFor(stream),
		Subjects:  []string{subjectFor(stream)},
		Retention: nats.LimitsPolicy,
		Replicas:  c.config.Replicas,
	}

	if _, err := c.js.AddStream(streamCfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			if _, updateErr := c.js.UpdateStream(streamCfg); updateErr != nil {
				return &broker.UnavailableError{Op: "ensure_stream", Stream: stream, Err: err}
			}
		}
	}

	c.mu.Lock()
	c.ensured[stream] = true
	c.mu.Unlock()
	return nil
}

func flightKey(stream, group, id string) string {
	return stream + "/" + group + "/" + id
}

// streamNameFor maps a logical stream name onto a JetStream-safe name.
func streamNameFor(stream string) string {
	return strings.ToUpper(sanitize(stream))
}

func subjectFor(stream string) string {
	return "streamflow." + sanitize(stream)
}

func durableFor(group string) string {
	return sanitize(group)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
