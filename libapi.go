package streamflow

import (
	brokerpkg "github.com/drblury/streamflow/broker"
	runtimepkg "github.com/drblury/streamflow/internal/runtime"
	configpkg "github.com/drblury/streamflow/internal/runtime/config"
	correlationpkg "github.com/drblury/streamflow/internal/runtime/correlation"
	envelopepkg "github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
	idspkg "github.com/drblury/streamflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/streamflow/internal/runtime/jsoncodec"
	ledgerpkg "github.com/drblury/streamflow/internal/runtime/ledger"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	ServiceSnapshot     = runtimepkg.ServiceSnapshot
	ConsumerInfo        = runtimepkg.ConsumerInfo

	ConsumerRegistration           = runtimepkg.ConsumerRegistration
	JSONHandlerRegistration[T any] = runtimepkg.JSONHandlerRegistration[T]
	JSONHandler[T any]             = handlerpkg.JSONHandler[T]
	Delivery                       = handlerpkg.Delivery
	HandlerFunc                    = handlerpkg.HandlerFunc
	HandlerMiddleware              = handlerpkg.Middleware
	HandlerRegistry                = handlerpkg.Registry

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Producer       = runtimepkg.Producer
	Consumer       = runtimepkg.Consumer
	ConsumerConfig = runtimepkg.ConsumerConfig

	Envelope = envelopepkg.Envelope

	Ledger         = ledgerpkg.Ledger
	LedgerEvent    = ledgerpkg.Event
	LedgerSnapshot = ledgerpkg.Snapshot
	ErrorRecord    = ledgerpkg.ErrorRecord

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	SerializationError  = errspkg.SerializationError
	MalformedEntryError = errspkg.MalformedEntryError
	HandlerError        = errspkg.HandlerError

	// Entry lifecycle hooks
	EntryContext = runtimepkg.EntryContext
	EntryHooks   = runtimepkg.EntryHooks

	// Broker types
	Entry              = brokerpkg.Entry
	BrokerClient       = brokerpkg.Client
	BrokerConfig       = brokerpkg.Config
	BrokerBuilder      = brokerpkg.Builder
	BrokerRegistry     = brokerpkg.Registry
	BrokerCapabilities = brokerpkg.Capabilities
	UnavailableError   = brokerpkg.UnavailableError
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig

	NewConsumer        = runtimepkg.NewConsumer
	NewHandlerRegistry = handlerpkg.NewRegistry
	ChainMiddlewares   = handlerpkg.Chain

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogEntriesMiddleware    = runtimepkg.LogEntriesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Entry lifecycle hooks
	EntryHooksMiddleware = runtimepkg.EntryHooksMiddleware
	LoggingHooks         = runtimepkg.LoggingHooks
	MetricsHooks         = runtimepkg.MetricsHooks
	AlertingHooks        = runtimepkg.AlertingHooks

	// Correlation id helpers
	WithCorrelationID     = correlationpkg.WithID
	CorrelationID         = correlationpkg.ID
	EnsureCorrelationID   = correlationpkg.Ensure
	CorrelationMiddleware = correlationpkg.Middleware

	// Envelope codec
	EncodeEnvelope = envelopepkg.Encode
	DecodeEnvelope = envelopepkg.Decode

	// Broker registry
	DefaultBrokerRegistry = brokerpkg.DefaultRegistry
	RegisterBroker        = brokerpkg.Register
	BuildBroker           = brokerpkg.Build
	GetBrokerCapabilities = brokerpkg.GetCapabilities

	NewLedger          = ledgerpkg.New
	LedgerWithCapacity = ledgerpkg.WithCapacity
	LedgerWithCounters = ledgerpkg.WithCounters

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrClientRequired    = errspkg.ErrClientRequired
	ErrStreamRequired    = errspkg.ErrStreamRequired
	ErrGroupRequired     = errspkg.ErrGroupRequired
	ErrConsumerRequired  = errspkg.ErrConsumerRequired
	ErrEventKindRequired = errspkg.ErrEventKindRequired
	ErrHandlerRequired   = errspkg.ErrHandlerRequired
	ErrPayloadRequired   = errspkg.ErrPayloadRequired
	ErrPayloadPointer    = errspkg.ErrPayloadPointer

	IsSerialization     = errspkg.IsSerialization
	IsMalformedEntry    = errspkg.IsMalformedEntry
	IsHandler           = errspkg.IsHandler
	IsBrokerUnavailable = brokerpkg.IsUnavailable

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.Nop

	CreateULID = idspkg.CreateULID

	// NewCorrelationID mints a correlation identifier using ULID.
	NewCorrelationID = idspkg.NewCorrelationID
)

// Envelope and entry field keys - use these constants when inspecting raw
// entries or building custom tooling on top of the wire format.
const (
	FieldData        = brokerpkg.FieldData
	KeyEventKind     = envelopepkg.KeyEventKind
	KeyCorrelationID = envelopepkg.KeyCorrelationID

	DefaultCorrelationHeader = correlationpkg.DefaultHeader
)

// RegisterJSONHandler registers a typed JSON handler for an event kind on a
// consumer group, creating the consumer when needed. T must be a pointer
// type.
func RegisterJSONHandler[T any](svc *Service, cfg JSONHandlerRegistration[T]) error {
	return runtimepkg.RegisterJSONHandler(svc, cfg)
}

// RegisterJSON binds a typed JSON handler directly onto a handler registry.
func RegisterJSON[T any](r *HandlerRegistry, kind string, handler JSONHandler[T]) error {
	return handlerpkg.RegisterJSON(r, kind, handler)
}
