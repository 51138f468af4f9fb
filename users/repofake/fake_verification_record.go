package repofake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-verification-handoff/users"
)

var _ users.VerificationRecord = (*FakeVerificationRecord)(nil)

// FakeVerificationRecord counts calls and fails the first failures of them.
type FakeVerificationRecord struct {
	lock     sync.Mutex
	failures int
	failErr  error
	calls    []string
	verified map[string]bool
}

func NewFakeVerificationRecord() *FakeVerificationRecord {
	return &FakeVerificationRecord{verified: make(map[string]bool)}
}

// FailNext makes the next n calls return an error.
func (r *FakeVerificationRecord) FailNext(n int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failures = n
	r.failErr = nil
}

// FailNextWith makes the next n calls return err.
func (r *FakeVerificationRecord) FailNextWith(n int, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failures = n
	r.failErr = err
}

func (r *FakeVerificationRecord) MarkVerified(_ context.Context, userID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = append(r.calls, userID)
	if r.failures > 0 {
		r.failures--
		if r.failErr != nil {
			return r.failErr
		}
		return errors.New("user store unavailable")
	}
	r.verified[userID] = true
	return nil
}

func (r *FakeVerificationRecord) IsVerified(userID string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.verified[userID]
}

func (r *FakeVerificationRecord) Calls() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.calls)
}
