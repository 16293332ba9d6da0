// internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// ErrShortCircuited is returned without invoking the remote call while the
// breaker is open (or half-open with its trial budget exhausted).
var ErrShortCircuited = errors.New("circuit breaker open: call short-circuited")

// Outcome is the tagged result of a protected call. Orchestrators switch on
// it instead of re-classifying errors at every call site.
type Outcome int

const (
	Ok Outcome = iota
	NotFound
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case NotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

// Mode mirrors the breaker's current state for operational visibility.
type Mode string

const (
	ModeClosed   Mode = "closed"
	ModeOpen     Mode = "open"
	ModeHalfOpen Mode = "half_open"
)

// Config holds the breaker tunables shared by all gateways in a registry.
type Config struct {
	// MinCalls is the minimum number of recorded calls before the failure
	// rate is evaluated at all.
	MinCalls uint32
	// FailureRate in [0,1]; at or above it the breaker trips.
	FailureRate float64
	// OpenWait is how long the breaker stays open before allowing trial calls.
	OpenWait time.Duration
	// HalfOpenMaxCalls is the trial budget while half-open.
	HalfOpenMaxCalls uint32
	// WindowInterval is the period after which the closed-state call window
	// is reset, so stale outcomes age out.
	WindowInterval time.Duration
	// CallTimeout bounds every protected call.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinCalls:         5,
		FailureRate:      0.5,
		OpenWait:         25 * time.Second,
		HalfOpenMaxCalls: 2,
		WindowInterval:   60 * time.Second,
		CallTimeout:      5 * time.Second,
	}
}

// Registry hands out one Gateway per downstream dependency name. It is
// constructed once in main and passed by reference into every orchestrator;
// there is no package-level lookup.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	gateways map[string]*Gateway

	shortCircuits *prometheus.CounterVec
	calls         *prometheus.CounterVec
	state         *prometheus.GaugeVec
}

func NewRegistry(cfg Config, reg prometheus.Registerer) *Registry {
	def := DefaultConfig()
	if cfg.MinCalls == 0 {
		cfg.MinCalls = def.MinCalls
	}
	if cfg.FailureRate == 0 {
		cfg.FailureRate = def.FailureRate
	}
	if cfg.OpenWait == 0 {
		cfg.OpenWait = def.OpenWait
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if cfg.WindowInterval == 0 {
		cfg.WindowInterval = def.WindowInterval
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	r := &Registry{
		cfg:      cfg,
		gateways: make(map[string]*Gateway),
		shortCircuits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circulation_breaker_short_circuits_total",
			Help: "Calls rejected without reaching the dependency",
		}, []string{"dependency"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circulation_gateway_calls_total",
			Help: "Protected calls by dependency and outcome",
		}, []string{"dependency", "outcome"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circulation_breaker_state",
			Help: "Breaker state per dependency (0=closed, 1=half-open, 2=open)",
		}, []string{"dependency"}),
	}
	if reg != nil {
		reg.MustRegister(r.shortCircuits, r.calls, r.state)
	}
	return r
}

// Gateway returns the gateway for the named dependency, creating it on first
// use. All sagas calling the same dependency share one breaker.
func (r *Registry) Gateway(name string) *Gateway {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gateways[name]; ok {
		return g
	}
	g := newGateway(name, r.cfg, r)
	r.gateways[name] = g
	return g
}

// Status is a point-in-time view of one gateway, for the /breakers endpoint.
type Status struct {
	Dependency    string `json:"dependency"`
	Mode          Mode   `json:"mode"`
	ShortCircuits uint64 `json:"short_circuits"`
}

func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.gateways))
	for _, g := range r.gateways {
		out = append(out, Status{
			Dependency:    g.name,
			Mode:          g.Mode(),
			ShortCircuits: g.ShortCircuits(),
		})
	}
	return out
}

// Gateway wraps calls to one downstream dependency with failure-rate tracking
// and short-circuiting. It is an explicit decorator around the transport
// client: the orchestrator passes the remote call in as a closure.
type Gateway struct {
	name          string
	cb            *gobreaker.CircuitBreaker
	callTimeout   time.Duration
	shortCircuits atomic.Uint64
	registry      *Registry
}

func newGateway(name string, cfg Config, registry *Registry) *Gateway {
	g := &Gateway{
		name:        name,
		callTimeout: cfg.CallTimeout,
		registry:    registry,
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    cfg.WindowInterval,
		Timeout:     cfg.OpenWait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinCalls {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		// Only transient faults count against the window. Application-level
		// rejections (not-found, bad-request) mean the dependency is healthy
		// and answered; they are surfaced to the caller but recorded as
		// breaker successes.
		IsSuccessful: func(err error) bool {
			return !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %q: %s -> %s", name, from, to)
			registry.state.WithLabelValues(name).Set(stateValue(to))
		},
	})
	registry.state.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	return g
}

// Call runs fn under the breaker with a bounded timeout and returns the
// classified outcome alongside the underlying error.
func (g *Gateway) Call(ctx context.Context, fn func(context.Context) error) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	outcome, err := g.classify(err)
	g.registry.calls.WithLabelValues(g.name, outcome.String()).Inc()
	return outcome, err
}

func (g *Gateway) classify(err error) (Outcome, error) {
	switch {
	case err == nil:
		return Ok, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.shortCircuits.Add(1)
		g.registry.shortCircuits.WithLabelValues(g.name).Inc()
		return Unavailable, fmt.Errorf("%s: %w", g.name, ErrShortCircuited)
	case isNotFound(err):
		return NotFound, err
	default:
		return Unavailable, err
	}
}

// Mode reports the breaker's current state. An open breaker whose wait
// duration has elapsed reports half-open; the transition happens lazily.
func (g *Gateway) Mode() Mode {
	switch g.cb.State() {
	case gobreaker.StateOpen:
		return ModeOpen
	case gobreaker.StateHalfOpen:
		return ModeHalfOpen
	default:
		return ModeClosed
	}
}

// ShortCircuits returns how many calls were rejected without reaching the
// dependency since process start.
func (g *Gateway) ShortCircuits() uint64 {
	return g.shortCircuits.Load()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

func isNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}
