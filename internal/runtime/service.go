package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/streamflow/broker"
	configpkg "github.com/drblury/streamflow/internal/runtime/config"
	"github.com/drblury/streamflow/internal/runtime/correlation"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
	"github.com/drblury/streamflow/internal/runtime/jsoncodec"
	ledgerpkg "github.com/drblury/streamflow/internal/runtime/ledger"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// ServiceDependencies holds the optional collaborators a Service can use.
// Zero values select the defaults.
type ServiceDependencies struct {
	// BrokerRegistry resolves the configured broker name. Defaults to the
	// global registry populated by the backend packages' init functions.
	BrokerRegistry *broker.Registry

	// Middlewares are appended after the default middleware chain.
	Middlewares []MiddlewareRegistration

	// DisableDefaultMiddlewares skips registering the default chain when true.
	DisableDefaultMiddlewares bool

	// Registerer receives the service's Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer. Only used when metrics are enabled.
	Registerer prometheus.Registerer
}

// ConsumerRegistration declares one competing consumer on a stream group.
// Handlers may be nil; an empty registry is created and returned so event
// kinds can be bound afterwards.
type ConsumerRegistration struct {
	Stream   string
	Group    string
	Consumer string
	Handlers *handlerpkg.Registry
}

type consumerSpec struct {
	stream   string
	group    string
	consumer string
	registry *handlerpkg.Registry
}

// Service wires the broker client, producer, consumers, middleware chain,
// and resilience ledgers into one runnable unit.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	client   broker.Client
	producer *Producer

	publishLedger *ledgerpkg.Ledger
	consumeLedger *ledgerpkg.Ledger
	metrics       *serviceMetrics

	middlewares []handlerpkg.Middleware

	consumers   map[string]*consumerSpec
	consumersMu sync.Mutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// TryNewService constructs a Service for the supplied configuration.
// Register consumers and handlers on the returned Service before calling
// Start.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("streamflow: invalid configuration: %w", err)
	}

	log.Info("Creating stream service", loggingpkg.LogFields{
		"broker": conf.Broker,
		"config": conf,
	})

	s := &Service{
		Conf:      conf,
		Logger:    log,
		consumers: make(map[string]*consumerSpec),
	}

	if conf.MetricsEnabled {
		metrics, err := newServiceMetrics(deps.Registerer)
		if err != nil {
			return nil, fmt.Errorf("streamflow: failed to register metrics: %w", err)
		}
		s.metrics = metrics
	}

	s.publishLedger = newLedger(s, "publish")
	s.consumeLedger = newLedger(s, "consume")

	registry := deps.BrokerRegistry
	if registry == nil {
		registry = broker.DefaultRegistry
	}
	client, err := registry.Build(ctx, conf, loggingpkg.NewBrokerAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("streamflow: failed to build broker client: %w", err)
	}
	s.client = client

	producer, err := NewProducer(client, s.publishLedger, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.producer = producer

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		client.Close()
		return nil, err
	}

	s.registerDiagnostics()

	return s, nil
}

// NewService constructs a Service, panicking on error. Use TryNewService
// when the caller wants to handle construction failures.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

func newLedger(s *Service, op string) *ledgerpkg.Ledger {
	opts := []ledgerpkg.Option{ledgerpkg.WithCapacity(s.Conf.GetLedgerCapacity())}
	if s.metrics != nil {
		success, failure := s.metrics.ledgerCounters(op)
		opts = append(opts, ledgerpkg.WithCounters(success, failure))
	}
	return ledgerpkg.New(op, opts...)
}

// Publish appends an event onto the stream under the context's correlation
// id. Publication is best effort: on error the failure is already recorded
// in the publish ledger and the caller must not roll back its own state.
func (s *Service) Publish(ctx context.Context, stream, kind string, payload any) error {
	if s == nil {
		return errors.New("stream service is nil")
	}
	return s.producer.Publish(ctx, stream, kind, payload)
}

// RegisterConsumer declares a competing consumer on a stream group and
// returns its handler registry. The consumer group is created immediately,
// so entries published between registration and Start are retained for the
// group. Registering the same stream/group/consumer triple twice returns
// the existing registry.
func (s *Service) RegisterConsumer(reg ConsumerRegistration) (*handlerpkg.Registry, error) {
	if reg.Stream == "" {
		return nil, errspkg.ErrStreamRequired
	}
	if reg.Group == "" {
		return nil, errspkg.ErrGroupRequired
	}
	if reg.Consumer == "" {
		return nil, errspkg.ErrConsumerRequired
	}

	key := reg.Stream + "/" + reg.Group + "/" + reg.Consumer

	s.consumersMu.Lock()
	if existing, ok := s.consumers[key]; ok {
		s.consumersMu.Unlock()
		return existing.registry, nil
	}

	registry := reg.Handlers
	if registry == nil {
		registry = handlerpkg.NewRegistry()
	}
	s.consumers[key] = &consumerSpec{
		stream:   reg.Stream,
		group:    reg.Group,
		consumer: reg.Consumer,
		registry: registry,
	}
	s.consumersMu.Unlock()

	// Create the group cursor now so events published before Start are
	// already behind it and get delivered once the loop runs. Failure is
	// non-fatal; the consumer loop retries the same idempotent call.
	if err := s.client.EnsureGroup(context.Background(), reg.Stream, reg.Group); err != nil {
		s.Logger.Error("Failed to create consumer group at registration", err, loggingpkg.LogFields{
			"stream": reg.Stream,
			"group":  reg.Group,
		})
	}
	return registry, nil
}

// Start runs all registered consumers and the configured HTTP endpoints
// until the context is cancelled, then closes the broker client.
func (s *Service) Start(ctx context.Context) error {
	s.startHTTPServers()

	consumers, err := s.buildConsumers()
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []error
	)
	for _, c := range consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
		}(c)
	}

	if len(consumers) == 0 {
		<-ctx.Done()
	}
	wg.Wait()

	if err := s.client.Close(); err != nil {
		s.Logger.Error("Failed to close broker client", err, nil)
	}

	return errors.Join(errs...)
}

func (s *Service) buildConsumers() ([]*Consumer, error) {
	s.consumersMu.Lock()
	specs := make([]*consumerSpec, 0, len(s.consumers))
	for _, spec := range s.consumers {
		specs = append(specs, spec)
	}
	s.consumersMu.Unlock()

	var chain handlerpkg.Middleware
	if len(s.middlewares) > 0 {
		chain = handlerpkg.Chain(s.middlewares...)
	}

	consumers := make([]*Consumer, 0, len(specs))
	for _, spec := range specs {
		c, err := NewConsumer(ConsumerConfig{
			Client:         s.client,
			Registry:       spec.registry,
			Ledger:         s.consumeLedger,
			Logger:         s.Logger,
			Stream:         spec.stream,
			Group:          spec.group,
			Consumer:       spec.consumer,
			Chain:          chain,
			BlockDuration:  s.Conf.GetBlockDuration(),
			BatchSize:      s.Conf.GetBatchSize(),
			IdlePause:      s.Conf.GetIdlePause(),
			ErrorBackoff:   s.Conf.GetErrorBackoff(),
			HandlerTimeout: s.Conf.GetHandlerTimeout(),
		})
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
	}
	return consumers, nil
}

// Ping reports broker reachability.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// CorrelationMiddleware returns HTTP middleware that adopts or mints a
// correlation id per request using the configured header.
func (s *Service) CorrelationMiddleware() func(http.Handler) http.Handler {
	return correlation.Middleware(s.Conf.GetCorrelationHeader())
}

// ConsumerInfo describes one registered consumer in a snapshot.
type ConsumerInfo struct {
	Stream   string   `json:"stream"`
	Group    string   `json:"group"`
	Consumer string   `json:"consumer"`
	Kinds    []string `json:"kinds"`
}

// ServiceSnapshot is the diagnostic view served on /resilience: the
// registered consumers plus both ledger snapshots.
type ServiceSnapshot struct {
	Broker    string             `json:"broker"`
	Consumers []ConsumerInfo     `json:"consumers"`
	Publish   ledgerpkg.Snapshot `json:"publish"`
	Consume   ledgerpkg.Snapshot `json:"consume"`
}

// Snapshot returns the current diagnostic view without mutating any state.
func (s *Service) Snapshot() ServiceSnapshot {
	s.consumersMu.Lock()
	infos := make([]ConsumerInfo, 0, len(s.consumers))
	for _, spec := range s.consumers {
		infos = append(infos, ConsumerInfo{
			Stream:   spec.stream,
			Group:    spec.group,
			Consumer: spec.consumer,
			Kinds:    spec.registry.Kinds(),
		})
	}
	s.consumersMu.Unlock()

	return ServiceSnapshot{
		Broker:    s.Conf.Broker,
		Consumers: infos,
		Publish:   s.publishLedger.Snapshot(),
		Consume:   s.consumeLedger.Snapshot(),
	}
}

// PublishSnapshot returns the publish ledger snapshot.
func (s *Service) PublishSnapshot() ledgerpkg.Snapshot {
	return s.publishLedger.Snapshot()
}

// ConsumeSnapshot returns the consume ledger snapshot.
func (s *Service) ConsumeSnapshot() ledgerpkg.Snapshot {
	return s.consumeLedger.Snapshot()
}

func (s *Service) registerDiagnostics() {
	port := s.Conf.DiagnosticsPort
	if port <= 0 {
		return
	}
	s.RegisterHTTPHandler(port, "/resilience", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := jsoncodec.Encode(w, s.Snapshot()); err != nil {
			s.Logger.Error("Failed to encode resilience snapshot", err, nil)
		}
	}))
	s.RegisterHTTPHandler(port, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

// RegisterHTTPHandler mounts a handler on the mux served at the given port
// once Start runs.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
