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
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/metrics"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/resolver"
	"umbasa.net/seraph-mounts/shares/shares"
)

type State int

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// Delta is the change a refresh applied to the mounts of a user.
type Delta struct {
	Added   []MountPoint
	Removed []MountPoint
	// replaced at the same target
	Changed []MountPoint
}

func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

type SynchronizerParams struct {
	fx.In

	Config    Config
	Resolver  *resolver.Resolver
	Validator *TargetValidator
	Cache     CacheStore
	Shares    shares.Store
	Nodes     nodes.Store
	Members   shares.MemberLister
	Flags     RefreshFlags
	Bus       events.Bus
	Logger    *logging.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

type SynchronizerResult struct {
	fx.Out

	Synchronizer *Synchronizer
}

// Synchronizer keeps the mount cache in line with share lifecycle events.
// Created and deleted shares patch the cache of their recipients; access
// updates recompute the whole mount set of the affected users. When too
// many users are affected the remaining ones are flagged for the
// background refresh job.
type Synchronizer struct {
	log       *slog.Logger
	cfg       Config
	resolver  *resolver.Resolver
	validator *TargetValidator
	cache     CacheStore
	shares    shares.Store
	nodes     nodes.Store
	members   shares.MemberLister
	flags     RefreshFlags
	bus       events.Bus
	metrics   *metrics.Metrics

	mu       sync.Mutex
	state    map[string]State
	subs     []events.Subscription
	deferred func()
}

func NewSynchronizer(p SynchronizerParams) SynchronizerResult {
	return SynchronizerResult{
		Synchronizer: &Synchronizer{
			log:       p.Logger.GetLogger("synchronizer"),
			cfg:       p.Config,
			resolver:  p.Resolver,
			validator: p.Validator,
			cache:     p.Cache,
			shares:    p.Shares,
			nodes:     p.Nodes,
			members:   p.Members,
			flags:     p.Flags,
			bus:       p.Bus,
			metrics:   p.Metrics,
			state:     make(map[string]State),
		},
	}
}

func (s *Synchronizer) Start() error {
	created, err := events.Subscribe(s.bus, shares.ShareCreatedTopic, func(ctx context.Context, ev *shares.ShareCreatedEvent) error {
		return s.OnShareCreated(ctx, &ev.Share)
	})
	if err != nil {
		return fmt.Errorf("While starting Synchronizer: %w", err)
	}
	deleted, err := events.Subscribe(s.bus, shares.BeforeShareDeletedTopic, func(ctx context.Context, ev *shares.BeforeShareDeletedEvent) error {
		return s.OnBeforeShareDeleted(ctx, &ev.Share)
	})
	if err != nil {
		created.Unsubscribe()
		return fmt.Errorf("While starting Synchronizer: %w", err)
	}
	updated, err := events.Subscribe(s.bus, shares.UserShareAccessUpdatedTopic, func(ctx context.Context, ev *shares.UserShareAccessUpdatedEvent) error {
		return s.OnAccessUpdated(ctx, ev)
	})
	if err != nil {
		created.Unsubscribe()
		deleted.Unsubscribe()
		return fmt.Errorf("While starting Synchronizer: %w", err)
	}
	s.subs = []events.Subscription{created, deleted, updated}
	return nil
}

func (s *Synchronizer) Stop() error {
	var errs []error
	for _, sub := range s.subs {
		errs = append(errs, sub.Unsubscribe())
	}
	s.subs = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("While stopping Synchronizer: %w", err)
	}
	return nil
}

// State returns whether the mounts of user are currently being recomputed.
func (s *Synchronizer) State(user string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[user]
}

func (s *Synchronizer) begin(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state[user] == Refreshing {
		return false
	}
	s.state[user] = Refreshing
	return true
}

func (s *Synchronizer) end(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, user)
}

func (s *Synchronizer) refreshing(user string) bool {
	return s.State(user) == Refreshing
}

// forUsers calls handle for users one after the other. If there are more
// users than the cutoff, or the time budget runs out, the users not
// handled yet are flagged instead.
func (s *Synchronizer) forUsers(ctx context.Context, users []string, handle func(ctx context.Context, user string) error) error {
	if len(users) > s.cfg.Refresh.CutoffUsers {
		s.log.Debug("too many users affected, deferring", "users", len(users), "cutoff", s.cfg.Refresh.CutoffUsers)
		return s.deferUsers(ctx, users)
	}
	start := time.Now()
	for i, user := range users {
		if time.Since(start) > s.cfg.Refresh.TimeBudget {
			s.log.Debug("time budget exceeded, deferring", "users", len(users)-i)
			return s.deferUsers(ctx, users[i:])
		}
		if s.refreshing(user) {
			// a running refresh may have read the old state already
			if err := s.deferUsers(ctx, []string{user}); err != nil {
				return err
			}
			continue
		}
		if err := handle(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) deferUsers(ctx context.Context, users []string) error {
	if err := s.flags.Flag(ctx, users...); err != nil {
		return err
	}
	s.metrics.Deferred(len(users))

	s.mu.Lock()
	notify := s.deferred
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
	return nil
}

// NotifyDeferred sets a func called whenever users were flagged. A nil
// func removes it.
func (s *Synchronizer) NotifyDeferred(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = fn
}

// OnShareCreated mounts the node of share for each of its recipients.
func (s *Synchronizer) OnShareCreated(ctx context.Context, share *shares.Share) error {
	s.metrics.Event("created")

	recipients, err := shares.Recipients(ctx, s.members, share)
	if err != nil {
		return err
	}
	return s.forUsers(ctx, recipients, func(ctx context.Context, user string) error {
		super, err := s.resolver.ResolveNode(ctx, user, share.NodeId)
		if err != nil {
			return err
		}
		if super == nil {
			return nil
		}
		return s.mount(ctx, user, super)
	})
}

// mount validates the target of super and writes its mount, replacing an
// existing mount of the same node at another target.
func (s *Synchronizer) mount(ctx context.Context, user string, super *resolver.SuperShare) error {
	current, err := s.cache.GetMountsForUser(ctx, user)
	if err != nil {
		return err
	}
	target, err := s.validator.VerifyMountPoint(ctx, user, super, current, nil)
	if err != nil {
		return err
	}
	for _, m := range current {
		if m.RootId == super.NodeId && m.Target != target {
			if err := s.cache.Remove(ctx, user, m.Target); err != nil {
				return err
			}
			s.metrics.MountChange("removed", 1)
		}
	}
	mount := s.mountPoint(user, super, target)
	if err := s.cache.Upsert(ctx, &mount); err != nil {
		return err
	}
	s.metrics.MountChange("added", 1)
	s.log.Debug("mounted share", "user", user, "target", target, "node", super.NodeId.Hex())
	return nil
}

func (s *Synchronizer) mountPoint(user string, super *resolver.SuperShare, target string) MountPoint {
	return MountPoint{
		User:        user,
		Target:      target,
		RootId:      super.NodeId,
		Provider:    s.cfg.Provider,
		ShareId:     super.Id,
		Owner:       super.Owner,
		Permissions: super.Permissions,
	}
}

// OnBeforeShareDeleted removes the mounts share provides. A node that stays
// reachable through other shares is mounted again from those. Mounts of
// re-shares the recipient created below the node are removed as well.
func (s *Synchronizer) OnBeforeShareDeleted(ctx context.Context, share *shares.Share) error {
	s.metrics.Event("deleted")

	recipients, err := shares.Recipients(ctx, s.members, share)
	if err != nil {
		return err
	}
	return s.forUsers(ctx, recipients, func(ctx context.Context, user string) error {
		if err := s.unmount(ctx, user, share); err != nil {
			return err
		}
		return s.unmountReshares(ctx, user, share)
	})
}

func (s *Synchronizer) unmount(ctx context.Context, user string, share *shares.Share) error {
	current, err := s.cache.GetMountsForUser(ctx, user)
	if err != nil {
		return err
	}
	for _, m := range current {
		if m.RootId == share.NodeId {
			if err := s.cache.Remove(ctx, user, m.Target); err != nil {
				return err
			}
			s.metrics.MountChange("removed", 1)
			s.log.Debug("unmounted share", "user", user, "target", m.Target, "share", share.Id.Hex())
		}
	}

	super, err := s.resolver.ResolveNode(ctx, user, share.NodeId)
	if err != nil || super == nil {
		return err
	}
	remaining := slices.DeleteFunc(slices.Clone(super.Shares), func(other shares.Share) bool {
		return other.Id == share.Id
	})
	merged := resolver.Merge(user, remaining)
	if len(merged) == 0 {
		return nil
	}
	return s.mount(ctx, user, &merged[0])
}

func (s *Synchronizer) unmountReshares(ctx context.Context, user string, share *shares.Share) error {
	created, err := s.shares.GetSharesBy(ctx, user, shares.ShareTypeAny, nil, false)
	if err != nil {
		return err
	}
	for i := range created {
		reshare := &created[i]
		if reshare.Id == share.Id || reshare.Owner != share.Owner {
			continue
		}
		below, err := s.nodes.IsAncestor(ctx, share.NodeId, reshare.NodeId)
		if errors.Is(err, nodes.ErrNodeNotFound) {
			below = reshare.NodeId == share.NodeId
		} else if err != nil {
			return err
		}
		if !below {
			continue
		}
		if err := s.removeShareMounts(ctx, reshare); err != nil {
			return err
		}
	}
	return nil
}

// removeShareMounts removes the mounts whose representative is share.
func (s *Synchronizer) removeShareMounts(ctx context.Context, share *shares.Share) error {
	mounts, err := s.cache.GetMountsForRootIds(ctx, []primitive.ObjectID{share.NodeId})
	if err != nil {
		return err
	}
	for _, m := range mounts {
		if m.ShareId != share.Id {
			continue
		}
		if err := s.cache.Remove(ctx, m.User, m.Target); err != nil {
			return err
		}
		s.metrics.MountChange("removed", 1)
		s.log.Debug("unmounted re-share", "user", m.User, "target", m.Target, "share", share.Id.Hex())
	}
	return nil
}

// OnAccessUpdated recomputes the mounts of the users in ev and of the
// members of the groups in ev.
func (s *Synchronizer) OnAccessUpdated(ctx context.Context, ev *shares.UserShareAccessUpdatedEvent) error {
	s.metrics.Event("accessUpdated")

	users := slices.Clone(ev.Users)
	for _, g := range ev.Groups {
		members, err := s.members.Members(ctx, g.ShareType, g.Name)
		if err != nil {
			return fmt.Errorf("While listing members of %s %s: %w", g.ShareType, g.Name, err)
		}
		users = append(users, members...)
	}
	users = dedupe(users)

	return s.forUsers(ctx, users, func(ctx context.Context, user string) error {
		_, err := s.RefreshUser(ctx, user)
		return err
	})
}

// ErrRefreshing is returned by RefreshUser when a refresh of the same user
// is already running. The user is flagged instead.
var ErrRefreshing = errors.New("refresh already running")

// RefreshUser recomputes all mounts of user and writes the difference to
// the cached mounts.
func (s *Synchronizer) RefreshUser(ctx context.Context, user string) (*Delta, error) {
	if !s.begin(user) {
		if err := s.deferUsers(ctx, []string{user}); err != nil {
			return nil, err
		}
		return nil, ErrRefreshing
	}
	defer s.end(user)
	done := s.metrics.RefreshStarted()
	defer done()

	current, err := s.cache.GetMountsForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	supers, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	// mounts of nodes that are no longer shared do not block targets
	retained := slices.DeleteFunc(slices.Clone(current), func(m CachedMount) bool {
		return !slices.ContainsFunc(supers, func(super resolver.SuperShare) bool {
			return super.NodeId == m.RootId
		})
	})

	desired := make([]MountPoint, 0, len(supers))
	for i := range supers {
		target, err := s.validator.VerifyMountPoint(ctx, user, &supers[i], retained, desired)
		if err != nil {
			return nil, err
		}
		desired = append(desired, s.mountPoint(user, &supers[i], target))
	}

	delta := diff(MountPoints(current), desired)
	for _, m := range delta.Removed {
		if err := s.cache.Remove(ctx, user, m.Target); err != nil {
			return nil, err
		}
	}
	for _, m := range slices.Concat(delta.Added, delta.Changed) {
		if err := s.cache.Upsert(ctx, &m); err != nil {
			return nil, err
		}
	}

	s.metrics.MountChange("added", len(delta.Added))
	s.metrics.MountChange("removed", len(delta.Removed))
	s.metrics.MountChange("changed", len(delta.Changed))
	if !delta.Empty() {
		s.log.Debug("refreshed mounts", "user", user, "added", len(delta.Added), "removed", len(delta.Removed), "changed", len(delta.Changed))
	}
	return delta, nil
}

func diff(current []MountPoint, desired []MountPoint) *Delta {
	delta := &Delta{}
	for _, c := range current {
		if !slices.ContainsFunc(desired, func(d MountPoint) bool { return d.Target == c.Target }) {
			delta.Removed = append(delta.Removed, c)
		}
	}
	for _, d := range desired {
		i := slices.IndexFunc(current, func(c MountPoint) bool { return c.Target == d.Target })
		switch {
		case i < 0:
			delta.Added = append(delta.Added, d)
		case current[i] != d:
			delta.Changed = append(delta.Changed, d)
		}
	}
	return delta
}

func dedupe(users []string) []string {
	seen := make(map[string]bool, len(users))
	res := make([]string, 0, len(users))
	for _, u := range users {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		res = append(res, u)
	}
	return res
}
