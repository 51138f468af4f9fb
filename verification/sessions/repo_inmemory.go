package sessions

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/pkg/errors"
)

const (
	defaultShards  = 32
	defaultMaxLive = 10000
)

var _ Repo = (*InMemoryRepo)(nil)

type entry struct {
	mu      sync.Mutex
	session Session
	removed bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// InMemoryRepo is a sharded in-memory Repo. A shard lock only guards map
// membership; session state sits behind a per-entry lock so unrelated sessions
// never contend.
type InMemoryRepo struct {
	shards  []*shard
	maxLive int64
	live    atomic.Int64
	grace   time.Duration
	nowTime func() time.Time
	sweepMu sync.Mutex
}

// InMemoryRepoOption defines a function type to modify the InMemoryRepo instance.
type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// WithShards sets the number of lock shards.
func WithShards(n int) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		if n > 0 {
			r.shards = newShards(n)
		}
	}
}

// WithMaxLive bounds how many sessions the store will hold.
func WithMaxLive(n int) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		if n > 0 {
			r.maxLive = int64(n)
		}
	}
}

// WithGrace keeps expired and finished sessions readable by their owner for d
// after ExpiresAt before the sweep removes them.
func WithGrace(d time.Duration) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		if d > 0 {
			r.grace = d
		}
	}
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo(options ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		shards:  newShards(defaultShards),
		maxLive: defaultMaxLive,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return shards
}

func (r *InMemoryRepo) shardFor(sessionID string) *shard {
	return r.shards[xxhash.Sum64String(sessionID)%uint64(len(r.shards))]
}

func (r *InMemoryRepo) lookup(sessionID string) (*entry, bool) {
	s := r.shardFor(sessionID)
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	return e, ok
}

// Put stores a new session
func (r *InMemoryRepo) Put(session Session) error {
	if session.ID == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "[InMemoryRepo Put] session id is required")
	}

	if r.live.Add(1) > r.maxLive {
		r.live.Add(-1)
		return errors.Wrap(apperrors.ErrResourceExhausted, "[InMemoryRepo Put] session store is full")
	}

	s := r.shardFor(session.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[session.ID]; exists {
		r.live.Add(-1)
		return errors.Wrap(apperrors.ErrAlreadyExists, "[InMemoryRepo Put]")
	}
	s.entries[session.ID] = &entry{session: session.Clone()}
	return nil
}

// Get retrieves a live session by ID. Unknown and expired ids fail identically.
func (r *InMemoryRepo) Get(sessionID string) (Session, error) {
	session, err := r.Snapshot(sessionID)
	if err != nil || r.nowTime().After(session.ExpiresAt) {
		return Session{}, errors.Wrap(apperrors.ErrNotFound, "[InMemoryRepo Get]")
	}
	return session, nil
}

// Snapshot retrieves any held session by ID, expired or not
func (r *InMemoryRepo) Snapshot(sessionID string) (Session, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Session{}, errors.Wrap(apperrors.ErrNotFound, "[InMemoryRepo Snapshot]")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Session{}, errors.Wrap(apperrors.ErrNotFound, "[InMemoryRepo Snapshot]")
	}
	return e.session.Clone(), nil
}

// Update mutates a live session under its own lock
func (r *InMemoryRepo) Update(sessionID string, fn func(*Session) error) (Session, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Session{}, errors.Wrap(apperrors.ErrNotFound, "[InMemoryRepo Update]")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || r.nowTime().After(e.session.ExpiresAt) {
		return Session{}, errors.Wrap(apperrors.ErrNotFound, "[InMemoryRepo Update]")
	}

	working := e.session.Clone()
	if err := fn(&working); err != nil {
		return Session{}, err
	}

	working.ID = e.session.ID
	working.TokenDigest = e.session.TokenDigest
	working.OwnerUserID = e.session.OwnerUserID
	working.CreatedAt = e.session.CreatedAt
	working.ExpiresAt = e.session.ExpiresAt

	e.session = working
	return working.Clone(), nil
}

// Delete removes a session
func (r *InMemoryRepo) Delete(sessionID string) bool {
	s := r.shardFor(sessionID)
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	r.live.Add(-1)
	return true
}

// SweepExpired expires and garbage collects sessions. Concurrent calls are serialised.
func (r *InMemoryRepo) SweepExpired() int {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	now := r.nowTime()
	removed := 0

	for _, s := range r.shards {
		s.mu.RLock()
		candidates := make(map[string]*entry, len(s.entries))
		for id, e := range s.entries {
			candidates[id] = e
		}
		s.mu.RUnlock()

		for id, e := range candidates {
			if !r.expire(e, now) {
				continue
			}

			s.mu.Lock()
			if s.entries[id] == e {
				delete(s.entries, id)
				removed++
				r.live.Add(-1)
			}
			s.mu.Unlock()
		}
	}
	return removed
}

// expire marks e expired once past ExpiresAt and reports whether it is past the
// grace window and should be dropped.
func (r *InMemoryRepo) expire(e *entry, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || !now.After(e.session.ExpiresAt) {
		return false
	}
	if !e.session.Status.IsTerminal() {
		e.session.Status = StatusExpired
	}
	if now.After(e.session.ExpiresAt.Add(r.grace)) {
		e.removed = true
		return true
	}
	return false
}

// Len is the number of sessions held
func (r *InMemoryRepo) Len() int {
	return int(r.live.Load())
}
