package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/scheduler"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

func newTestService(t *testing.T, cfg Config, clock clockwork.Clock) (*Service, *store.Store) {
	t.Helper()
	st := createTestStore(t)
	sched, err := scheduler.New(
		scheduler.WithClock(clock),
		scheduler.WithLogger(logging.Discard()),
		scheduler.WithStopTimeout(5*time.Second),
	)
	require.NoError(t, err)
	svc, err := NewService(context.Background(), st, sched, cfg, testOptions())
	require.NoError(t, err)
	return svc, st
}

func TestService_PeriodicFlush(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	svc, st := newTestService(t, Config{FlushInterval: time.Second, RecomputeInterval: time.Hour}, clock)
	svc.Start()
	defer svc.Shutdown(ctx)

	require.NoError(t, svc.Applier.Apply(ctx, model.InsertRound{Round: testRound()}))
	require.NoError(t, svc.Applier.Apply(ctx, model.InsertDonation{Donation: testDonation(1, "0", testDonorA, "3")}))

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		n, err := st.CountDonations(ctx)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	token, err := svc.Tokens.Get(ctx, testChainID, testRoundID)
	require.NoError(t, err)
	assert.Equal(t, testToken, token)
}

func TestService_ShutdownFlushesRemainingDonations(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, Config{FlushInterval: time.Hour, RecomputeInterval: time.Hour}, clockwork.NewFakeClock())
	svc.Start()

	for i := 0; i < 10; i++ {
		require.NoError(t, svc.Applier.Apply(ctx, model.InsertDonation{Donation: testDonation(i, "0", testDonorA, "1")}))
	}
	n, err := st.CountDonations(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, svc.Shutdown(ctx))

	n, err = st.CountDonations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	err = svc.Applier.Apply(ctx, model.InsertDonation{Donation: testDonation(99, "0", testDonorA, "1")})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestService_DefaultsAppliedToZeroConfig(t *testing.T) {
	svc, _ := newTestService(t, Config{}, clockwork.NewFakeClock())
	assert.Equal(t, DefaultConfig().ChunkSize, svc.Queue.ChunkSize())
	svc.Start()
	require.NoError(t, svc.Shutdown(context.Background()))
}
