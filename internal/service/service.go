// Package service implements the OCR workflow and its supporting queries.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/config"
	"github.com/xiaot623/ocrflow/internal/policy"
	"github.com/xiaot623/ocrflow/internal/progress"
	"github.com/xiaot623/ocrflow/internal/repository"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
)

const tracerName = "github.com/xiaot623/ocrflow/internal/service"

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// PDFInspector checks PDF structure locally.
type PDFInspector interface {
	PageCount(data []byte) (int, error)
}

// Publisher pushes progress messages to subscribers of a client id.
type Publisher interface {
	Publish(clientID string, msg *progress.Message)
}

// Service runs OCR workflows.
type Service struct {
	config       *config.Config
	provider     maiagent.Provider
	store        repository.Store
	policyEngine *policy.Engine
	logs         *sessionlog.Sink

	pdf       PDFInspector
	publisher Publisher
	tracer    trace.Tracer
	sleep     SleepFunc
	now       func() time.Time

	chatbots singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithSleepFunc replaces the real sleeper, e.g. with a no-op in tests.
func WithSleepFunc(fn SleepFunc) Option {
	return func(s *Service) { s.sleep = fn }
}

// WithPDFInspector enables the local PDF structure check.
func WithPDFInspector(p PDFInspector) Option {
	return func(s *Service) { s.pdf = p }
}

// WithPublisher enables progress streaming.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(cfg *config.Config, provider maiagent.Provider, store repository.Store, policyEngine *policy.Engine, logs *sessionlog.Sink, opts ...Option) *Service {
	s := &Service{
		config:       cfg,
		provider:     provider,
		store:        store,
		policyEngine: policyEngine,
		logs:         logs,
		tracer:       otel.Tracer(tracerName),
		sleep:        sleepContext,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) publish(clientID string, msg *progress.Message) {
	if s.publisher == nil || clientID == "" {
		return
	}
	s.publisher.Publish(clientID, msg)
}
