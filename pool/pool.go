// Package pool maintains a reusable set of established sessions to one
// server.
//
// Sessions are created through a Builder, guarded by a circuit breaker so a
// dead server does not absorb a fresh dial per submission, and probed with
// NOOP when they sat idle for too long. A Pool is safe for concurrent use.
package pool

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	smtpclient "github.com/mailgear/go-smtpclient"
	"github.com/mailgear/go-smtpclient/metrics"
)

const (
	defaultMaxSize          = 4
	defaultHealthCheckAfter = 30 * time.Second

	defaultBreakerMaxRequests = 1
	defaultBreakerInterval    = 1 * time.Minute
	defaultBreakerTimeout     = 30 * time.Second
)

// Config contains configuration for a Pool. Builder is the only required
// field.
type Config struct {
	// Builder establishes new sessions. Protocol, security, credentials
	// and timeout all come from it.
	Builder *smtpclient.Builder

	// MaxSize caps the number of live sessions. Zero means 4.
	MaxSize int32

	// HealthCheckAfter is the idle age beyond which an acquired session is
	// probed with NOOP before being handed out. Zero means 30 seconds,
	// negative disables the probe.
	HealthCheckAfter time.Duration

	// NewBreaker overrides the circuit breaker guarding session
	// establishment, keyed by the pool's server address. Nil means a
	// breaker that trips after three mostly failed connects in a minute
	// and probes again after 30 seconds.
	NewBreaker func(name string) *gobreaker.CircuitBreaker[*smtpclient.Session]

	// Logger receives pool events. Nil means the logrus standard logger.
	Logger logrus.FieldLogger
}

// Pool hands out ready sessions to one server.
type Pool struct {
	name             string
	pool             *puddle.Pool[*smtpclient.Session]
	breaker          *gobreaker.CircuitBreaker[*smtpclient.Session]
	healthCheckAfter time.Duration
	log              logrus.FieldLogger

	createdSessions   atomic.Int64
	destroyedSessions atomic.Int64
}

// New creates a Pool that connects through cfg.Builder.
func New(cfg Config) (*Pool, error) {
	if cfg.Builder == nil {
		return nil, errors.New("pool: a Builder is required")
	}

	p := &Pool{
		name:             net.JoinHostPort(cfg.Builder.Host, strconv.Itoa(cfg.Builder.Port)),
		healthCheckAfter: cfg.HealthCheckAfter,
		log:              cfg.Logger,
	}
	if p.healthCheckAfter == 0 {
		p.healthCheckAfter = defaultHealthCheckAfter
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	if cfg.NewBreaker != nil {
		p.breaker = cfg.NewBreaker(p.name)
	} else {
		p.breaker = newConnectBreaker(p.name, defaultBreakerMaxRequests, defaultBreakerInterval, defaultBreakerTimeout, p.log)
	}

	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultMaxSize
	}
	pp, err := puddle.NewPool(&puddle.Config[*smtpclient.Session]{
		Constructor: p.connect(cfg.Builder),
		Destructor:  p.disconnect,
		MaxSize:     maxSize,
	})
	if err != nil {
		return nil, err
	}
	p.pool = pp
	return p, nil
}

// connect returns the pool constructor. Establishment runs through the
// circuit breaker; when the breaker is open no connection is attempted at
// all.
func (p *Pool) connect(b *smtpclient.Builder) func(ctx context.Context) (*smtpclient.Session, error) {
	return func(ctx context.Context) (*smtpclient.Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := p.breaker.Execute(b.Connect)
		if err != nil {
			result := "error"
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				result = "open"
			}
			metrics.ConnectsTotal.WithLabelValues(p.name, result).Inc()
			p.log.WithFields(logrus.Fields{
				"pool":  p.name,
				"error": err,
			}).Warn("session establishment failed")
			return nil, err
		}
		metrics.ConnectsTotal.WithLabelValues(p.name, "ok").Inc()
		metrics.SessionsCurrent.WithLabelValues(p.name).Inc()
		p.createdSessions.Add(1)
		return s, nil
	}
}

func (p *Pool) disconnect(s *smtpclient.Session) {
	metrics.SessionsCurrent.WithLabelValues(p.name).Dec()
	p.destroyedSessions.Add(1)
	// no farewell: a destroyed session may sit mid-transaction, where QUIT
	// would be read as message data and its reply would never come
	s.Close()
}

// Address returns the host:port the pool connects to. Pool metrics are
// labeled with it.
func (p *Pool) Address() string {
	return p.name
}

// Acquire returns a ready session, establishing one if the pool is empty and
// below capacity. Sessions past the health check age are probed with NOOP
// first; dead ones are discarded and replaced transparently.
//
// Exactly one of Release or Destroy must be called on the returned Pooled.
func (p *Pool) Acquire(ctx context.Context) (*Pooled, error) {
	for {
		start := time.Now()
		res, err := p.pool.Acquire(ctx)
		metrics.AcquireDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.AcquiresTotal.WithLabelValues(p.name, "error").Inc()
			return nil, err
		}

		if p.healthCheckAfter > 0 && res.IdleDuration() > p.healthCheckAfter {
			if err := res.Value().Noop(); err != nil {
				metrics.HealthChecksTotal.WithLabelValues(p.name, "error").Inc()
				p.log.WithFields(logrus.Fields{
					"pool":  p.name,
					"idle":  res.IdleDuration(),
					"error": err,
				}).Info("discarding dead idle session")
				res.Destroy()
				continue
			}
			metrics.HealthChecksTotal.WithLabelValues(p.name, "ok").Inc()
		}

		metrics.AcquiresTotal.WithLabelValues(p.name, "ok").Inc()
		return &Pooled{res: res}, nil
	}
}

// With acquires a session, runs fn with it, and returns it to the pool. A
// nil error from fn releases the session for reuse; any error destroys it,
// since a failed exchange can leave the server mid-transaction.
func (p *Pool) With(ctx context.Context, fn func(*smtpclient.Session) error) error {
	pd, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := fn(pd.Session()); err != nil {
		pd.Destroy()
		return err
	}
	pd.Release()
	return nil
}

// Send submits a message through a pooled session, with the same semantics
// as Session.Send.
func (p *Pool) Send(ctx context.Context, from string, to []string, r io.Reader) error {
	err := p.With(ctx, func(s *smtpclient.Session) error {
		return s.Send(from, to, r)
	})
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(p.name, "error").Inc()
		return err
	}
	metrics.DeliveriesTotal.WithLabelValues(p.name, "ok").Inc()
	return nil
}

// Close destroys all idle sessions, waits for acquired ones to be released
// or destroyed, and closes the pool. Acquire fails afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	// Current state
	TotalSessions    int32
	IdleSessions     int32
	AcquiredSessions int32
	MaxSessions      int32

	// Lifetime counters
	CreatedSessions      int64
	DestroyedSessions    int64
	AcquireCount         int64
	EmptyAcquireCount    int64
	CanceledAcquireCount int64
	EmptyAcquireWaitTime time.Duration

	// Connect circuit breaker
	BreakerState  gobreaker.State
	BreakerCounts gobreaker.Counts
}

// Stats returns statistics about the pool.
func (p *Pool) Stats() Stats {
	stat := p.pool.Stat()
	return Stats{
		TotalSessions:        stat.TotalResources(),
		IdleSessions:         stat.IdleResources(),
		AcquiredSessions:     stat.AcquiredResources(),
		MaxSessions:          stat.MaxResources(),
		CreatedSessions:      p.createdSessions.Load(),
		DestroyedSessions:    p.destroyedSessions.Load(),
		AcquireCount:         stat.AcquireCount(),
		EmptyAcquireCount:    stat.EmptyAcquireCount(),
		CanceledAcquireCount: stat.CanceledAcquireCount(),
		EmptyAcquireWaitTime: stat.EmptyAcquireWaitTime(),
		BreakerState:         p.breaker.State(),
		BreakerCounts:        p.breaker.Counts(),
	}
}

// Pooled is an acquired session.
type Pooled struct {
	res *puddle.Resource[*smtpclient.Session]
}

// Session returns the underlying ready session.
func (pd *Pooled) Session() *smtpclient.Session {
	return pd.res.Value()
}

// Release returns the session to the pool for reuse. Only sessions left in
// command state should be released; after a failed transaction use Destroy.
func (pd *Pooled) Release() {
	pd.res.Release()
}

// Destroy closes the session and removes it from the pool.
func (pd *Pooled) Destroy() {
	pd.res.Destroy()
}
