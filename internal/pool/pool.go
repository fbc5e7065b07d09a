// Package pool implements the bounded MariaDB session pool (§4.3): a
// sync.Mutex/sync.Cond waiting-room over a fixed-capacity set of
// handshake-authenticated sessions, with idle reaping and warm-up, built
// for one pool addressing one logical server rather than a multi-tenant
// routing table.
package pool

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/handshake"
	"github.com/skymond-software/mariadb-client/internal/metrics"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// Config configures a Pool. Stored separately from handshake.Config because
// the pool also owns dial/lifecycle knobs the handshake engine has no
// opinion about.
type Config struct {
	Address        string // host:port, already resolved from §6 host syntax
	DialTimeout    time.Duration
	Login          handshake.Config
	MinSessions    int
	MaxSessions    int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	AcquireTimeout time.Duration

	// Metrics is optional; a nil Collector (the zero value) makes every
	// instrumentation call a no-op (§4.10).
	Metrics *metrics.Collector
}

// Stats is a point-in-time snapshot for the admin surface (§4.10).
type Stats struct {
	Active    int `json:"active"`
	Idle      int `json:"idle"`
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	MaxConns  int `json:"max_sessions"`
	MinConns  int `json:"min_sessions"`
	Exhausted int64 `json:"pool_exhausted_total"`
}

// Pool manages a bounded set of authenticated sessions against one address.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg Config

	idle    []*Session
	active  map[*Session]struct{}
	total   int
	waiting int

	exhausted int64
	closed    bool
	stopCh    chan struct{}
}

// New constructs a Pool and starts its background warm-up and idle-reaper
// goroutines (§4.3 SPEC_FULL addition).
func New(cfg Config) *Pool {
	p := &Pool{
		cfg:    cfg,
		active: make(map[*Session]struct{}),
		stopCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	go p.reapLoop()
	if cfg.MinSessions > 0 {
		go p.warmUp()
	}
	return p
}

func (p *Pool) dial(ctx context.Context) (*Session, error) {
	d := net.Dialer{Timeout: p.cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", p.cfg.Address)
	if err != nil {
		p.cfg.Metrics.HandshakeFailed()
		return nil, &dberrors.ConnectionLost{Cause: err}
	}
	conn := wire.NewConn(nc)
	hs, err := handshake.Perform(conn, p.cfg.Login)
	if err != nil {
		nc.Close()
		p.cfg.Metrics.HandshakeFailed()
		return nil, err
	}
	return newSession(conn, hs, p), nil
}

// publishStats pushes a fresh occupancy snapshot to the metrics Collector.
// Must be called with p.mu NOT held (it takes the lock itself via Stats).
func (p *Pool) publishStats() {
	s := p.Stats()
	p.cfg.Metrics.SetPoolStats(s.Active, s.Idle, s.Total, s.Waiting)
}

// warmUp pre-creates MinSessions idle sessions so the pool is ready before
// the first caller arrives.
func (p *Pool) warmUp() {
	for i := 0; i < p.cfg.MinSessions; i++ {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.MinSessions {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		s, err := p.dial(context.Background())
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			slog.Warn("pool warm-up failed", "index", i+1, "target", p.cfg.MinSessions, "err", err)
			return
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			s.close()
			return
		}
		s.markIdle()
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}
	slog.Info("pool pre-warmed", "count", p.cfg.MinSessions, "address", p.cfg.Address)
}

// Acquire returns a live session, creating one if the pool is under
// capacity, or blocking on the capacity condition variable until one is
// released or the deadline (the earlier of cfg.AcquireTimeout and ctx's own
// deadline) elapses (§4.3, §5).
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()
	s, err := p.acquire(ctx)
	p.cfg.Metrics.AcquireDuration(time.Since(start).Seconds())
	p.publishStats()
	return s, err
}

func (p *Pool) acquire(ctx context.Context) (*Session, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, &dberrors.ResourceExhausted{Reason: "pool is closed"}
		}

		for len(p.idle) > 0 {
			s := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]

			if s.isExpired(p.cfg.MaxLifetime) {
				s.close()
				p.total--
				continue
			}
			if err := s.ping(); err != nil {
				s.close()
				p.total--
				continue
			}

			s.markActive()
			p.active[s] = struct{}{}
			p.mu.Unlock()
			return s, nil
		}

		if p.total < p.cfg.MaxSessions {
			p.total++
			p.mu.Unlock()

			s, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, err
			}

			s.markActive()
			p.mu.Lock()
			p.active[s] = struct{}{}
			p.mu.Unlock()
			return s, nil
		}

		p.waiting++
		p.exhausted++
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.waiting--
			p.mu.Unlock()
			p.cfg.Metrics.PoolExhausted()
			return nil, &dberrors.ResourceExhausted{Reason: "acquire timeout: pool exhausted"}
		}

		timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
		p.cond.Wait()
		timer.Stop()
		p.waiting--

		if p.closed {
			p.mu.Unlock()
			return nil, &dberrors.ResourceExhausted{Reason: "pool closing"}
		}
		if time.Now().After(deadline) {
			p.mu.Unlock()
			p.cfg.Metrics.PoolExhausted()
			return nil, &dberrors.ResourceExhausted{Reason: "acquire timeout: pool exhausted"}
		}
		// retry from the top with mu held
	}
}

// release returns a live, non-expired session to the idle set and wakes
// every waiter. Called by Session.Release.
func (p *Pool) release(s *Session) {
	p.mu.Lock()
	delete(p.active, s)

	if p.closed || s.isExpired(p.cfg.MaxLifetime) {
		p.total--
		p.mu.Unlock()
		s.close()
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
		p.publishStats()
		return
	}

	s.markIdle()
	p.idle = append(p.idle, s)
	p.cond.Broadcast()
	p.mu.Unlock()
	p.publishStats()
}

// destroy removes a session from circulation without returning it to idle,
// for the §4.3 health rule: any send/receive error, sequence mismatch, or
// parse error destroys the session rather than recycling it.
func (p *Pool) destroy(s *Session) {
	p.mu.Lock()
	delete(p.active, s)
	p.total--
	p.mu.Unlock()

	s.close()

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.publishStats()
}

// Stats returns a point-in-time snapshot for the admin surface.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:    len(p.active),
		Idle:      len(p.idle),
		Total:     p.total,
		Waiting:   p.waiting,
		MaxConns:  p.cfg.MaxSessions,
		MinConns:  p.cfg.MinSessions,
		Exhausted: p.exhausted,
	}
}

// Close shuts down the pool: no further Acquire succeeds, and every idle
// session is closed. Sessions still checked out are closed as they are
// released or destroyed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	close(p.stopCh)
	p.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
	p.cond.Broadcast()
}

// reapLoop periodically closes idle sessions beyond MinSessions that have
// sat idle past IdleTimeout or aged past MaxLifetime (§4.3 SPEC_FULL
// addition), on a 30s interval.
func (p *Pool) reapLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *Pool) reapOnce() {
	p.mu.Lock()

	if len(p.idle) <= p.cfg.MinSessions {
		p.mu.Unlock()
		return
	}
	excess := len(p.idle) - p.cfg.MinSessions
	kept := p.idle[:0]
	var reaped []*Session
	for i, s := range p.idle {
		if i < excess && (s.isIdleExpired(p.cfg.IdleTimeout) || s.isExpired(p.cfg.MaxLifetime)) {
			reaped = append(reaped, s)
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept
	p.total -= len(reaped)
	p.mu.Unlock()

	for _, s := range reaped {
		s.close()
	}
	if len(reaped) > 0 {
		p.publishStats()
	}
}
