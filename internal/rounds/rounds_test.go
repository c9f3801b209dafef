package rounds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/predictpool-client/internal/health"
	"github.com/yourorg/predictpool-client/internal/metrics"
	"github.com/yourorg/predictpool-client/internal/model"
)

type fakeSource struct {
	mu        sync.Mutex
	epoch     model.Epoch
	epochErr  error
	rounds    []model.Round
	roundsErr error
	epochs    map[int64]model.Epoch
	lookups   []int64
}

func (f *fakeSource) CurrentEpoch(ctx context.Context) (model.Epoch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch, f.epochErr
}

func (f *fakeSource) EpochRounds(ctx context.Context, id int64) ([]model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Round(nil), f.rounds...), f.roundsErr
}

func (f *fakeSource) Epoch(ctx context.Context, id int64) (model.Epoch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	e, ok := f.epochs[id]
	if !ok {
		return model.Epoch{}, fmt.Errorf("epoch %d: %w", id, model.ErrNotFound)
	}
	return e, nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newTestPoller(src Source) (*Poller, *health.Tracker) {
	fc := clockwork.NewFakeClock()
	tr := health.New("poller", health.DefaultThresholds(), fc)
	return NewPoller(src, time.Second, fc, tr, metrics.New(prometheus.NewRegistry())), tr
}

func TestSelectRelevant(t *testing.T) {
	tests := []struct {
		name   string
		rounds []model.Round
		want   int64
	}{
		{"no candidates", []model.Round{{ID: 1, Status: model.RoundCompleted}, {ID: 2, Status: model.RoundNext}}, 0},
		{"single active", []model.Round{{ID: 1, Status: model.RoundCompleted}, {ID: 2, Status: model.RoundActive}, {ID: 3, Status: model.RoundNext}}, 2},
		{"active beats locked and calculating", []model.Round{{ID: 1, Status: model.RoundCalculating}, {ID: 2, Status: model.RoundLocked}, {ID: 3, Status: model.RoundActive}}, 3},
		{"locked beats calculating", []model.Round{{ID: 4, Status: model.RoundCalculating}, {ID: 5, Status: model.RoundLocked}}, 5},
		{"ties go to lowest id", []model.Round{{ID: 9, Status: model.RoundActive}, {ID: 7, Status: model.RoundActive}}, 7},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectRelevant(tt.rounds)
			if tt.want == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestPoller_SortsAndSelects(t *testing.T) {
	src := &fakeSource{
		epoch: model.Epoch{ID: 2},
		rounds: []model.Round{
			{ID: 12, EpochID: 2, Status: model.RoundNext},
			{ID: 10, EpochID: 2, Status: model.RoundCompleted},
			{ID: 11, EpochID: 2, Status: model.RoundActive},
		},
	}
	p, tr := newTestPoller(src)

	require.NoError(t, p.Poll(context.Background()))

	snap := p.Snapshot()
	require.Len(t, snap.Rounds, 3)
	assert.Equal(t, []int64{10, 11, 12}, ids(snap.Rounds))
	require.NotNil(t, snap.Relevant)
	assert.Equal(t, int64(11), snap.Relevant.ID)
	assert.Equal(t, int64(11), snap.ActiveRoundID())
	assert.Equal(t, int64(2), snap.Epoch.ID)
	assert.Equal(t, health.StateHealthy, tr.State())
}

func TestPoller_NoRelevantRound(t *testing.T) {
	src := &fakeSource{
		epoch:  model.Epoch{ID: 2},
		rounds: []model.Round{{ID: 1, Status: model.RoundCompleted}, {ID: 2, Status: model.RoundLater}},
	}
	p, _ := newTestPoller(src)

	require.NoError(t, p.Poll(context.Background()))
	assert.Nil(t, p.Relevant())
	assert.Equal(t, int64(0), p.Snapshot().ActiveRoundID())
}

func TestPoller_KeepsStateOnFailure(t *testing.T) {
	src := &fakeSource{
		epoch:  model.Epoch{ID: 2},
		rounds: []model.Round{{ID: 5, Status: model.RoundActive}},
	}
	p, tr := newTestPoller(src)
	require.NoError(t, p.Poll(context.Background()))

	var updates int
	p.OnUpdate(func(Snapshot) { updates++ })

	src.set(func(f *fakeSource) { f.roundsErr = errors.New("connection refused") })
	assert.Error(t, p.Poll(context.Background()))
	assert.Equal(t, int64(5), p.Snapshot().RelevantID())
	assert.Equal(t, health.StateDegraded, tr.State())

	src.set(func(f *fakeSource) {
		f.roundsErr = nil
		f.epochErr = fmt.Errorf("no epoch: %w", model.ErrNotFound)
	})
	assert.ErrorIs(t, p.Poll(context.Background()), model.ErrNotFound)
	assert.Equal(t, int64(5), p.Snapshot().RelevantID())

	src.set(func(f *fakeSource) {
		f.epochErr = nil
		f.rounds = nil
	})
	assert.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, int64(5), p.Snapshot().RelevantID(), "an empty list keeps the previous rounds")

	assert.Zero(t, updates, "listeners only see applied cycles")
}

func TestPoller_SnapshotIsACopy(t *testing.T) {
	src := &fakeSource{epoch: model.Epoch{ID: 1}, rounds: []model.Round{{ID: 1, Status: model.RoundActive}}}
	p, _ := newTestPoller(src)
	require.NoError(t, p.Poll(context.Background()))

	snap := p.Snapshot()
	snap.Rounds[0].Status = model.RoundCompleted
	snap.Relevant.ID = 99

	again := p.Snapshot()
	assert.Equal(t, model.RoundActive, again.Rounds[0].Status)
	assert.Equal(t, int64(1), again.Relevant.ID)
}

func TestPoller_RunNotifiesListeners(t *testing.T) {
	src := &fakeSource{epoch: model.Epoch{ID: 1}, rounds: []model.Round{{ID: 1, Status: model.RoundActive}}}
	fc := clockwork.NewFakeClock()
	p := NewPoller(src, 2*time.Second, fc, nil, nil)

	got := make(chan Snapshot, 4)
	p.OnUpdate(func(s Snapshot) { got <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	first := waitSnapshot(t, got)
	assert.Equal(t, int64(1), first.RelevantID())

	src.set(func(f *fakeSource) {
		f.rounds = []model.Round{{ID: 1, Status: model.RoundLocked}, {ID: 2, Status: model.RoundActive}}
	})
	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	fc.Advance(2 * time.Second)

	second := waitSnapshot(t, got)
	assert.Equal(t, int64(2), second.RelevantID())
}

func TestUpcomingFetcher(t *testing.T) {
	src := &fakeSource{epochs: map[int64]model.Epoch{}}
	u := NewUpcomingFetcher(src)
	ctx := context.Background()

	u.Observe(Snapshot{})
	u.FetchPending(ctx)
	assert.Empty(t, src.lookups, "nothing to fetch without a relevant round")

	u.Observe(Snapshot{Relevant: &model.Round{ID: 1, EpochID: 3}})
	u.FetchPending(ctx)
	assert.Nil(t, u.Upcoming(), "failed fetch leaves state untouched")
	assert.Equal(t, []int64{4}, src.lookups)

	src.set(func(f *fakeSource) {
		f.epochs[4] = model.Epoch{ID: 4, StartTime: model.MustParseTimestamp("2025-03-01 13:00:00")}
	})
	u.Observe(Snapshot{Relevant: &model.Round{ID: 2, EpochID: 3}})
	u.FetchPending(ctx)
	require.NotNil(t, u.Upcoming())
	assert.Equal(t, int64(4), u.Upcoming().ID)

	u.Observe(Snapshot{Relevant: &model.Round{ID: 3, EpochID: 3}})
	u.FetchPending(ctx)
	assert.Equal(t, []int64{4, 4}, src.lookups, "same epoch is not fetched twice")

	u.Observe(Snapshot{Relevant: &model.Round{ID: 9, EpochID: 4}})
	u.FetchPending(ctx)
	assert.Equal(t, int64(4), u.Upcoming().ID, "previous upcoming epoch kept while the next is unknown")
	assert.Equal(t, []int64{4, 4, 5}, src.lookups)
}

func TestUpcomingFetcher_Run(t *testing.T) {
	src := &fakeSource{epochs: map[int64]model.Epoch{8: {ID: 8}}}
	u := NewUpcomingFetcher(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	u.Observe(Snapshot{Relevant: &model.Round{ID: 1, EpochID: 7}})
	assert.Eventually(t, func() bool { return u.Upcoming() != nil }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func ids(rounds []model.Round) []int64 {
	out := make([]int64, len(rounds))
	for i, r := range rounds {
		out[i] = r.ID
	}
	return out
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return Snapshot{}
	}
}
