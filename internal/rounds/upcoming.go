package rounds

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/model"
	"github.com/yourorg/predictpool-client/internal/schedule"
)

// EpochSource looks up a single epoch.
type EpochSource interface {
	Epoch(ctx context.Context, id int64) (model.Epoch, error)
}

// UpcomingFetcher keeps the epoch following the relevant round's epoch.
// It looks exactly one epoch ahead.
type UpcomingFetcher struct {
	src     EpochSource
	trigger *schedule.Trigger
	log     *logrus.Entry

	mu         sync.RWMutex
	wantFor    int64
	fetchedFor int64
	upcoming   *model.Epoch
}

// NewUpcomingFetcher creates an UpcomingFetcher.
func NewUpcomingFetcher(src EpochSource) *UpcomingFetcher {
	return &UpcomingFetcher{
		src:     src,
		trigger: schedule.NewTrigger(),
		log:     logrus.WithField("component", "upcoming"),
	}
}

// Observe is a Poller listener. It schedules a fetch whenever the relevant
// round belongs to an epoch whose successor has not been fetched yet. Since
// the poller calls it every cycle, a failed fetch is retried on the next one.
func (u *UpcomingFetcher) Observe(s Snapshot) {
	if s.Relevant == nil {
		return
	}
	u.mu.Lock()
	u.wantFor = s.Relevant.EpochID
	pending := u.wantFor != u.fetchedFor
	u.mu.Unlock()

	if pending {
		u.trigger.Fire()
	}
}

// Run performs scheduled fetches until ctx is cancelled.
func (u *UpcomingFetcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.trigger.C():
			u.FetchPending(ctx)
		}
	}
}

// FetchPending fetches the upcoming epoch if the target changed since the
// last successful fetch. Failures leave the previous upcoming epoch in place.
func (u *UpcomingFetcher) FetchPending(ctx context.Context) {
	u.mu.RLock()
	current := u.wantFor
	done := current == u.fetchedFor
	u.mu.RUnlock()
	if done || current == 0 {
		return
	}

	next := current + 1
	epoch, err := u.src.Epoch(ctx, next)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		entry := u.log.WithError(err).WithField("epoch", next)
		if errors.Is(err, model.ErrNotFound) {
			entry.Debug("Upcoming epoch not announced yet")
		} else {
			entry.Warn("Failed to fetch upcoming epoch")
		}
		return
	}

	u.mu.Lock()
	u.fetchedFor = current
	u.upcoming = &epoch
	u.mu.Unlock()
	u.log.WithFields(logrus.Fields{"epoch": epoch.ID, "start_time": epoch.StartTime.String()}).Info("Upcoming epoch fetched")
}

// Upcoming returns a copy of the last fetched upcoming epoch, or nil.
func (u *UpcomingFetcher) Upcoming() *model.Epoch {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.upcoming == nil {
		return nil
	}
	e := *u.upcoming
	return &e
}
