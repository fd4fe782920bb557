package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/rewardsync/internal/models"
	"github.com/wnt/rewardsync/internal/policy"
	"github.com/wnt/rewardsync/internal/store"
	"github.com/wnt/rewardsync/internal/submitter"
	"github.com/wnt/rewardsync/internal/syncer"
)

type stubStore struct{ pingErr error }

func (s *stubStore) FetchEligible(ctx context.Context, limit int) ([]models.Engagement, error) {
	return nil, nil
}

func (s *stubStore) ApplyRewards(ctx context.Context, updates []store.RewardUpdate) (int, error) {
	return 0, nil
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

type stubSubmitter struct{}

func (s *stubSubmitter) Submit(ctx context.Context, batch submitter.Batch) submitter.TxResult {
	return submitter.TxResult{Confirmed: true}
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (r *recordingNotifier) Notify(ctx context.Context, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

type stubPinger struct{}

func (stubPinger) Ping(ctx context.Context) error { return nil }

func newOrchestrator(chainErr error) *syncer.Orchestrator {
	params := syncer.Params{
		Store:        &stubStore{},
		Policy:       policy.Default(),
		Submitter:    &stubSubmitter{},
		ChainErr:     chainErr,
		Logger:       zerolog.Nop(),
		BatchSize:    10,
		FetchLimit:   100,
		HistoryLimit: 20,
	}
	if chainErr == nil {
		params.Chain = stubPinger{}
	}
	return syncer.New(params)
}

func TestRegister(t *testing.T) {
	t.Run("valid specs", func(t *testing.T) {
		s := New(context.Background(), newOrchestrator(nil), nil, "0 0 3 * * *", "0 0 */6 * * *", zerolog.Nop())
		assert.NoError(t, s.Register())
	})

	t.Run("invalid sync spec", func(t *testing.T) {
		s := New(context.Background(), newOrchestrator(nil), nil, "not a cron", "0 0 */6 * * *", zerolog.Nop())
		err := s.Register()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "register sync schedule")
	})

	t.Run("invalid health spec", func(t *testing.T) {
		s := New(context.Background(), newOrchestrator(nil), nil, "0 0 3 * * *", "whenever", zerolog.Nop())
		err := s.Register()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "register health schedule")
	})
}

func TestHealthCheckNotifiesWhenUnhealthy(t *testing.T) {
	sink := &recordingNotifier{}
	s := New(context.Background(), newOrchestrator(errors.New("SIGNER_KEY missing")), sink, "0 0 3 * * *", "0 0 */6 * * *", zerolog.Nop())

	s.runHealthCheck()

	require.Len(t, sink.payloads, 1)
	health, ok := sink.payloads[0].(syncer.Health)
	require.True(t, ok)
	assert.False(t, health.Healthy)
}

func TestHealthCheckQuietWhenHealthy(t *testing.T) {
	sink := &recordingNotifier{}
	s := New(context.Background(), newOrchestrator(nil), sink, "0 0 3 * * *", "0 0 */6 * * *", zerolog.Nop())

	s.runHealthCheck()

	assert.Empty(t, sink.payloads)
}

func TestScheduledSyncRuns(t *testing.T) {
	orch := newOrchestrator(nil)
	s := New(context.Background(), orch, nil, "0 0 3 * * *", "0 0 */6 * * *", zerolog.Nop())

	s.runSync()

	require.NotNil(t, orch.LastRun())
	assert.Equal(t, syncer.SourceScheduled, orch.LastRun().Source)
}
