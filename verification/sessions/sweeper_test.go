package sessions_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RemovesExpiredInBackground(t *testing.T) {
	clock := newTestClock()
	repo := sessions.NewInMemoryRepo(sessions.WithNowTime(clock.Now))
	require.NoError(t, repo.Put(newSession("s1", clock.Now(), time.Second)))
	clock.Advance(time.Minute)

	var removed atomic.Int64
	sweeper := sessions.NewSweeper(repo, 50*time.Millisecond, func(n int) {
		removed.Add(int64(n))
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool {
		return removed.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, repo.Len())

	cancel()
	require.NoError(t, <-done)
}

func TestSweeper_RejectsNonPositiveInterval(t *testing.T) {
	sweeper := sessions.NewSweeper(sessions.NewInMemoryRepo(), 0, nil)
	require.Error(t, sweeper.Start())
}
