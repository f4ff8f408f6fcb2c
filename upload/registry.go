package upload

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an untouched session keeps its gate and any
// upload waiting for a decision.
const DefaultSessionTTL = 30 * time.Minute

type sessionKey struct {
	owner, session string
}

// Registry hands out one Gate per owner session. Gates of different owners
// share nothing. Sessions idle or undecided for longer than the TTL are
// dropped together with their pending upload.
type Registry struct {
	checker Checker
	docs    DocumentWriter
	blobs   BlobWriter
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	gates     map[sessionKey]*Gate
	lastSweep time.Time
}

// NewRegistry returns an empty registry. A ttl of zero or less uses
// DefaultSessionTTL.
func NewRegistry(checker Checker, docs DocumentWriter, blobs BlobWriter, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		checker: checker,
		docs:    docs,
		blobs:   blobs,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		gates:   make(map[sessionKey]*Gate),
	}
}

func sessionFor(ownerID, sessionID string) sessionKey {
	if sessionID == "" {
		sessionID = ownerID
	}
	return sessionKey{owner: ownerID, session: sessionID}
}

// Gate returns the gate of the session, creating it on first use.
func (r *Registry) Gate(ownerID, sessionID string) *Gate {
	k := sessionFor(ownerID, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()

	g, ok := r.gates[k]
	if !ok {
		g = NewGate(ownerID, r.checker, r.docs, r.blobs, r.logger)
		g.now = r.now
		r.gates[k] = g
	}
	g.mu.Lock()
	g.touched = r.now()
	g.mu.Unlock()
	return g
}

// Lookup returns the gate of the session without creating one, or nil.
func (r *Registry) Lookup(ownerID, sessionID string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	return r.gates[sessionFor(ownerID, sessionID)]
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gates)
}

// sweep drops expired gates. It runs at most once per half TTL.
func (r *Registry) sweep() {
	now := r.now()
	if now.Sub(r.lastSweep) < r.ttl/2 {
		return
	}
	r.lastSweep = now

	cutoff := now.Add(-r.ttl)
	for k, g := range r.gates {
		if g.expire(cutoff) {
			delete(r.gates, k)
		}
	}
}
