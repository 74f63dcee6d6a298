// Package orchestrator wires the cache, deduplicator, retry executor, batch
// poller and virtual list renderer around one analysis service client.
//
// An Orchestrator owns every background timer it starts through a single
// schedule.Registry; Close cancels all of them together.
package orchestrator

import (
	"context"
	"net/http"
	"sync"

	"github.com/dailyyoga/contractflow/api"
	"github.com/dailyyoga/contractflow/batch"
	"github.com/dailyyoga/contractflow/cache"
	"github.com/dailyyoga/contractflow/config"
	"github.com/dailyyoga/contractflow/dedupe"
	"github.com/dailyyoga/contractflow/kafka"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/retry"
	"github.com/dailyyoga/contractflow/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Orchestrator is the explicit context object shared by every call site.
type Orchestrator struct {
	log logger.Logger
	cfg *config.Config
	reg *schedule.Registry

	cache   cache.Cache
	fetches *dedupe.Group
	calls   *dedupe.Group
	client  api.Client
	poller  *batch.Poller
	policy  retry.Policy

	producer  kafka.Producer
	ownsKafka bool

	closeOnce sync.Once
}

type options struct {
	clock      clockwork.Clock
	httpClient *http.Client
	tokens     oauth2.TokenSource
	client     api.Client
	notifier   batch.Notifier
	producer   kafka.Producer
}

// Option configures an Orchestrator.
type Option func(*options)

// WithClock drives every timer from c.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient replaces the service client's *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTokenSource overrides the token source built from the api config.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) { o.tokens = ts }
}

// WithClient replaces the service client entirely.
func WithClient(c api.Client) Option {
	return func(o *options) { o.client = c }
}

// WithNotifier is told about every finished batch job. It takes precedence
// over the Kafka notifier built from the config.
func WithNotifier(n batch.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithProducer publishes finished batch jobs through p instead of a producer
// built from the Kafka config. The caller keeps ownership of p.
func WithProducer(p kafka.Producer) Option {
	return func(o *options) { o.producer = p }
}

// New builds an Orchestrator from cfg. A Kafka producer is created when
// brokers are configured.
func New(ctx context.Context, log logger.Logger, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	log = logger.Named(log, "orchestrator")

	reg := schedule.NewRegistry(log, schedule.WithClock(o.clock))
	orc := &Orchestrator{log: log, cfg: cfg, reg: reg}

	var err error
	defer func() {
		if err != nil {
			orc.Close()
		}
	}()

	if orc.cache, err = cache.New(log, reg, &cfg.Cache); err != nil {
		return nil, err
	}
	orc.fetches = dedupe.New(log, dedupe.WithOnSuccess(orc.store), dedupe.WithBinder(reg.Bind))
	orc.calls = dedupe.New(log, dedupe.WithBinder(reg.Bind))

	orc.client = o.client
	if orc.client == nil {
		var clientOpts []api.Option
		if o.httpClient != nil {
			clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
		}
		if o.tokens != nil {
			clientOpts = append(clientOpts, api.WithTokenSource(o.tokens))
		}
		if orc.client, err = api.New(log, &cfg.API, clientOpts...); err != nil {
			return nil, err
		}
	}

	orc.policy = cfg.Retry
	orc.policy.Sleeper = reg
	orc.policy.Logger = log
	if orc.policy.Name == "" {
		orc.policy.Name = "fetch"
	}

	notifier := o.notifier
	if notifier == nil {
		orc.producer = o.producer
		if orc.producer == nil && cfg.Kafka.Enabled() {
			if orc.producer, err = kafka.NewProducer(ctx, log, &cfg.Kafka); err != nil {
				return nil, err
			}
			orc.ownsKafka = true
		}
		if orc.producer != nil {
			notifier = kafka.NewNotifier(log, orc.producer, cfg.Kafka.MergeDefaults().Topic)
		}
	}

	submit := cfg.Retry
	submit.Name = "batch-submit"
	pollerOpts := []batch.Option{batch.WithSubmitPolicy(submit)}
	if notifier != nil {
		pollerOpts = append(pollerOpts, batch.WithNotifier(notifier))
	}
	if orc.poller, err = batch.NewPoller(log, orc.client, reg, &cfg.Batch, pollerOpts...); err != nil {
		return nil, err
	}

	log.Info("orchestrator ready",
		zap.String("base_url", cfg.API.BaseURL),
		zap.Duration("cache_ttl", cfg.Cache.MergeDefaults().DefaultTTL),
		zap.Bool("kafka", notifier != nil),
	)
	return orc, nil
}

// Client returns the service client.
func (o *Orchestrator) Client() api.Client { return o.client }

// Cache returns the response cache.
func (o *Orchestrator) Cache() cache.Cache { return o.cache }

// Poller returns the batch poller.
func (o *Orchestrator) Poller() *batch.Poller { return o.poller }

// Registry returns the timer registry every background task runs under.
func (o *Orchestrator) Registry() *schedule.Registry { return o.reg }

// Close cancels every timer and poll loop, then releases the cache and the
// Kafka producer it created.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.reg.Close()
		if o.cache != nil {
			o.cache.Close()
		}
		if o.producer != nil && o.ownsKafka {
			if err := o.producer.Close(); err != nil {
				o.log.Warn("kafka producer close failed", zap.Error(err))
			}
		}
	})
}
