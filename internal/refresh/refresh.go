package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"breakcal/internal/ics"
	appLog "breakcal/internal/log"
)

// Fetcher obtains the current payload of a subscription. Commit marks a
// payload as good once it has been imported.
type Fetcher interface {
	Fetch(ctx context.Context, sub ics.Subscription) (ics.FetchResult, error)
	Commit(res ics.FetchResult) error
}

// Syncer stores a subscription payload.
type Syncer interface {
	Sync(ctx context.Context, sub ics.Subscription, body []byte) (int, error)
}

// Scheduler re-imports subscriptions on a cron schedule.
type Scheduler struct {
	fetcher Fetcher
	syncer  Syncer
	subs    []ics.Subscription
	spec    string
	loc     *time.Location
}

// New creates a Scheduler. spec is a standard 5-field cron expression
// evaluated in loc.
func New(fetcher Fetcher, syncer Syncer, subs []ics.Subscription, spec string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{fetcher: fetcher, syncer: syncer, subs: subs, spec: spec, loc: loc}
}

// RunOnce refreshes every subscription sequentially. A failing
// subscription does not stop the others; all errors are joined. A payload
// that fails to import is not committed to the fetch cache.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, sub := range s.subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.fetcher.Fetch(ctx, sub)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", sub.ID, err))
			continue
		}
		if _, err := s.syncer.Sync(ctx, sub, res.Body); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.fetcher.Commit(res); err != nil {
			appLog.Error("ics cache save failed", err, "id", sub.ID)
		}
	}
	return errors.Join(errs...)
}

// Start runs RunOnce immediately and then on every tick of the schedule
// until ctx is canceled. A tick that arrives while a run (including the
// initial one) is still in progress is skipped. It returns once the
// schedule is installed; the returned channel closes after every run has
// finished.
func (s *Scheduler) Start(ctx context.Context) (<-chan struct{}, error) {
	done := make(chan struct{})
	if len(s.subs) == 0 {
		appLog.Info("refresh disabled: no subscriptions configured")
		close(done)
		return done, nil
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		started := time.Now()
		if err := s.RunOnce(ctx); err != nil {
			appLog.Error("subscription refresh finished with errors", err, "took", time.Since(started))
			return
		}
		appLog.Info("subscription refresh done", "subscriptions", len(s.subs), "took", time.Since(started))
	}))

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddJob(s.spec, job); err != nil {
		close(done)
		return done, fmt.Errorf("invalid refresh schedule %q: %w", s.spec, err)
	}

	var initial sync.WaitGroup
	initial.Add(1)
	go func() {
		defer initial.Done()
		job.Run()
	}()
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		initial.Wait()
		close(done)
	}()

	appLog.Info("refresh scheduled", "spec", s.spec, "subscriptions", len(s.subs))
	return done, nil
}
