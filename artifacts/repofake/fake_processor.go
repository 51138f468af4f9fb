package repofake

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-verification-handoff/artifacts"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/pkg/errors"
)

var _ artifacts.Processor = (*FakeProcessor)(nil)

// FakeProcessor returns deterministic references and can be told to fail or block.
type FakeProcessor struct {
	lock  sync.Mutex
	calls []artifacts.Request
	fail  bool

	// BeforeReturn, when set, runs inside Process before the reference is returned.
	BeforeReturn func(req artifacts.Request)
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{}
}

func (p *FakeProcessor) SetFail(fail bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.fail = fail
}

func (p *FakeProcessor) Process(ctx context.Context, req artifacts.Request) (string, error) {
	p.lock.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	fail := p.fail
	hook := p.BeforeReturn
	p.lock.Unlock()

	if hook != nil {
		hook(req)
	}
	if fail {
		return "", errors.Wrap(apperrors.ErrProcessing, "fake processor failure")
	}
	return fmt.Sprintf("%s/%s-%d", req.SessionID, req.Step, n), nil
}

func (p *FakeProcessor) Calls() []artifacts.Request {
	p.lock.Lock()
	defer p.lock.Unlock()
	out := make([]artifacts.Request, len(p.calls))
	copy(out, p.calls)
	return out
}
