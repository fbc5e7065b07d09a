package pool

import (
	"net"
	"sync"
	"time"

	"github.com/skymond-software/mariadb-client/internal/handshake"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// SessionState is the lifecycle state of a pooled session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionActive
	SessionClosed
)

// Session is one authenticated MariaDB connection. It pairs the framed
// wire.Conn with the handshake result and pool bookkeeping. A Session is
// pinned to exactly one goroutine while checked out — the protocol is
// half-duplex per connection and nothing here synchronizes concurrent use
// (§5).
type Session struct {
	mu        sync.Mutex
	conn      *wire.Conn
	handshake *handshake.Result
	state     SessionState
	createdAt time.Time
	lastUsed  time.Time
	pool      *Pool // non-owning back-reference, used by Release/Destroy
}

func newSession(conn *wire.Conn, hs *handshake.Result, p *Pool) *Session {
	now := time.Now()
	return &Session{
		conn:      conn,
		handshake: hs,
		state:     SessionIdle,
		createdAt: now,
		lastUsed:  now,
		pool:      p,
	}
}

// Conn returns the packet-framed connection for command dispatch.
func (s *Session) Conn() *wire.Conn { return s.conn }

// ConnectionID returns the server-assigned connection id from the
// handshake, useful for admin/diagnostic surfaces.
func (s *Session) ConnectionID() uint32 { return s.handshake.ConnectionID }

func (s *Session) markActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionActive
	s.lastUsed = time.Now()
}

func (s *Session) markIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionIdle
	s.lastUsed = time.Now()
}

func (s *Session) isExpired(maxLifetime time.Duration) bool {
	if maxLifetime <= 0 {
		return false
	}
	return time.Since(s.createdAt) > maxLifetime
}

func (s *Session) isIdleExpired(idleTimeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idleTimeout <= 0 {
		return false
	}
	return s.state == SessionIdle && time.Since(s.lastUsed) > idleTimeout
}

// close tears down the underlying socket. It does not touch pool
// bookkeeping; callers adjust the pool's total count themselves.
func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionClosed
	return s.conn.Raw().Close()
}

// ping performs a lightweight liveness check: a short-deadline 1-byte read.
// A timeout means the connection is alive with nothing pending; any other
// error means the peer is gone. The wire protocol has no idle keepalive
// command worth spending a round trip on, so a deadline-probe read is the
// cheapest signal available.
func (s *Session) ping() error {
	nc := s.conn.Raw()
	nc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := nc.Read(buf)
	nc.SetReadDeadline(time.Time{})
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil
		}
		return err
	}
	return nil
}

// Release returns the session to its pool. The façade only calls this when
// the goroutine holding it has no open transaction and no table lock (§4.3
// release rule); that bookkeeping lives in the façade, not here.
func (s *Session) Release() {
	if s.pool != nil {
		s.pool.release(s)
	}
}

// Destroy removes the session from circulation after a protocol error,
// per §4.3's health rule.
func (s *Session) Destroy() {
	if s.pool != nil {
		s.pool.destroy(s)
	}
}
