// Copyright © 2024 Benjamin Schmitz

// This file is part of Seraph <https://github.com/Vortex375/seraph>.

// Seraph is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License
// as published by the Free Software Foundation,
// either version 3 of the License, or (at your option)
// any later version.

// Seraph is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with Seraph.  If not, see <http://www.gnu.org/licenses/>.

package mounts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/boz/go-throttle"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/util"
)

type RefreshJobParams struct {
	fx.In

	Config       Config
	Synchronizer *Synchronizer
	Flags        RefreshFlags
	Logger       *logging.Logger
}

type RefreshJobResult struct {
	fx.Out

	RefreshJob *RefreshJob
}

// RefreshJob periodically refreshes the users flagged by the synchronizer.
// While started it also runs shortly after the synchronizer deferred users.
type RefreshJob struct {
	log      *slog.Logger
	cfg      Config
	sync     *Synchronizer
	flags    RefreshFlags
	interval time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	wakeCh   chan struct{}
	throttle throttle.ThrottleDriver
}

func NewRefreshJob(p RefreshJobParams) RefreshJobResult {
	return RefreshJobResult{
		RefreshJob: &RefreshJob{
			log:      p.Logger.GetLogger("refreshJob"),
			cfg:      p.Config,
			sync:     p.Synchronizer,
			flags:    p.Flags,
			interval: p.Config.Refresh.Interval,
		},
	}
}

func (j *RefreshJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stopCh != nil {
		return nil
	}
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.wakeCh = make(chan struct{}, 1)
	if j.cfg.Refresh.WakeDelay > 0 {
		wakeCh := j.wakeCh
		j.throttle = throttle.ThrottleFunc(j.cfg.Refresh.WakeDelay, true, func() {
			select {
			case wakeCh <- struct{}{}:
			default:
			}
		})
		j.sync.NotifyDeferred(j.throttle.Trigger)
	}
	go j.worker(j.stopCh, j.doneCh, j.wakeCh)
	return nil
}

func (j *RefreshJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	stopCh, doneCh, wake := j.stopCh, j.doneCh, j.throttle
	j.stopCh, j.doneCh, j.wakeCh, j.throttle = nil, nil, nil, nil
	j.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	if wake != nil {
		j.sync.NotifyDeferred(nil)
		wake.Stop()
	}
	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *RefreshJob) worker(stopCh <-chan struct{}, doneCh chan<- struct{}, wakeCh <-chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	run := func() {
		n, err := j.RunNow(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			j.log.Error("error while refreshing flagged users", "error", err)
		} else if n > 0 {
			j.log.Info("refreshed flagged users", "users", n)
		}
	}

	for {
		select {
		case <-ticker.C:
			run()
		case <-wakeCh:
			run()
		case <-stopCh:
			return
		}
	}
}

// RunNow refreshes every flagged user, with at most the configured number
// of refreshes in parallel, and returns how many users were refreshed.
// A flag is cleared before its refresh so that flags set meanwhile survive.
func (j *RefreshJob) RunNow(ctx context.Context) (int, error) {
	users, err := j.flags.Flagged(ctx)
	if err != nil {
		return 0, err
	}

	limiter := util.NewLimiter(j.cfg.Refresh.Parallel)
	var mu sync.Mutex
	var errs []error
	refreshed := 0

	for _, user := range users {
		if !limiter.Begin(ctx) {
			break
		}
		go func() {
			defer limiter.End()

			err := j.flags.Clear(ctx, user)
			if err == nil {
				_, err = j.sync.RefreshUser(ctx, user)
			}

			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrRefreshing) {
				return
			}
			if err != nil {
				j.log.Error("error while refreshing user", "user", user, "error", err)
				errs = append(errs, err)
				// try again on the next run
				if err := j.flags.Flag(context.Background(), user); err != nil {
					j.log.Error("error while flagging user for the next run, user is not refreshed", "user", user, "error", err)
				}
				return
			}
			refreshed++
		}()
	}
	limiter.Join()

	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return refreshed, errors.Join(errs...)
}
