package batch

import (
	"crypto/tls"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultUserAgent is sent unless the request suppresses or overrides User-Agent.
const DefaultUserAgent = "fanout/1.0"

// Config holds batch defaults loaded from the environment.
type Config struct {
	Size           int           `envconfig:"BATCH_SIZE" default:"10"`
	Timeout        time.Duration `envconfig:"BATCH_TIMEOUT" default:"0s"`
	IncludeContent bool          `envconfig:"BATCH_INCLUDE_CONTENT" default:"true"`
	UserAgent      string        `envconfig:"BATCH_USER_AGENT" default:"fanout/1.0"`
}

// LoadConfig loads envs.
func LoadConfig() (Config, error) {
	c := Config{}
	return c, envconfig.Process("", &c)
}

// MustConfig loads envs.
// Panics in case of error.
func MustConfig(c Config, err error) Config {
	if err != nil {
		panic(err)
	}
	return c
}

// Options converts the config to runner options.
func (c Config) Options() []Option {
	return []Option{
		WithSize(c.Size),
		WithTimeout(c.Timeout),
		WithIncludeContent(c.IncludeContent),
		WithUserAgent(c.UserAgent),
	}
}

// Option configures a batch run.
type Option func(c *config)

type config struct {
	size             int
	timeout          time.Duration
	includeContent   bool
	userAgent        string
	onSuccess        func(*Response)
	onFailure        func(error)
	tlsConfig        *tls.Config
	transportFactory TransportFactory
	tracerProvider   trace.TracerProvider
	meterProvider    metric.MeterProvider
}

func newConfig(opts []Option) (config, error) {
	c := config{
		size:             DefaultSize,
		includeContent:   true,
		userAgent:        DefaultUserAgent,
		transportFactory: DefaultTransportFactory,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.size < 1 {
		return c, ErrInvalidSize
	}
	if c.timeout < 0 {
		return c, ErrInvalidTimeout
	}
	if c.tlsConfig == nil {
		c.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return c, nil
}

// WithSize sets the number of concurrent requests.
func WithSize(size int) Option {
	return func(c *config) {
		c.size = size
	}
}

// WithTimeout sets the per-request deadline, 0 means no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithIncludeContent sets whether response bodies are read.
func WithIncludeContent(include bool) Option {
	return func(c *config) {
		c.includeContent = include
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *config) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithOnSuccess registers the success notification target.
// It runs on its own goroutine and is never awaited.
func WithOnSuccess(fn func(*Response)) Option {
	return func(c *config) {
		c.onSuccess = fn
	}
}

// WithOnFailure registers the failure notification target.
// It receives a *RequestError, runs on its own goroutine and is never awaited.
func WithOnFailure(fn func(error)) Option {
	return func(c *config) {
		c.onFailure = fn
	}
}

// WithTLSConfig sets the TLS configuration shared by the batch transports.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) {
		c.tlsConfig = cfg
	}
}

// WithTransportFactory replaces the factory of per-batch transports.
func WithTransportFactory(factory TransportFactory) Option {
	return func(c *config) {
		if factory != nil {
			c.transportFactory = factory
		}
	}
}

// WithTracerProvider enables tracing of batches and requests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider enables batch metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}
