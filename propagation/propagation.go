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

// Package propagation keeps folder sizes and etags up to date after
// changes below them, for the owner of the content and for every user
// who sees it through a share.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/metrics"
	"umbasa.net/seraph-mounts/mounts"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/shares/shares"
)

type Params struct {
	fx.In

	Nodes   nodes.Store
	Shares  shares.Store
	Cache   mounts.CacheStore
	Locator *mounts.Locator
	Members shares.MemberLister
	Bus     events.Bus
	Logger  *logging.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Result struct {
	fx.Out

	Engine *Engine
}

// Engine reacts to storage and share hooks. The owner's ancestor chain
// receives the size delta, a new etag and modification time. Every other
// user who sees the changed node through a mount only gets a new etag
// along the chain above the mount.
type Engine struct {
	log     *slog.Logger
	nodes   nodes.Store
	shares  shares.Store
	cache   mounts.CacheStore
	locator *mounts.Locator
	members shares.MemberLister
	bus     events.Bus
	metrics *metrics.Metrics
	subs    []events.Subscription
	now     func() time.Time
}

func New(p Params) Result {
	return Result{
		Engine: &Engine{
			log:     p.Logger.GetLogger("propagation"),
			nodes:   p.Nodes,
			shares:  p.Shares,
			cache:   p.Cache,
			locator: p.Locator,
			members: p.Members,
			bus:     p.Bus,
			metrics: p.Metrics,
			now:     time.Now,
		},
	}
}

func (e *Engine) Start() error {
	subscriptions := []func() (events.Subscription, error){
		func() (events.Subscription, error) {
			return events.Subscribe(e.bus, events.NodeWrittenTopic, func(ctx context.Context, ev *events.NodeWrittenEvent) error {
				id, err := primitive.ObjectIDFromHex(ev.NodeId)
				if err != nil {
					return err
				}
				return e.OnWrite(ctx, id, ev.SizeDelta)
			})
		},
		func() (events.Subscription, error) {
			return events.Subscribe(e.bus, events.NodeRenamedTopic, func(ctx context.Context, ev *events.NodeRenamedEvent) error {
				id, err := primitive.ObjectIDFromHex(ev.NodeId)
				if err != nil {
					return err
				}
				oldParent, err := primitive.ObjectIDFromHex(ev.OldParentId)
				if err != nil {
					return err
				}
				return e.OnRename(ctx, id, oldParent, ev.Size)
			})
		},
		func() (events.Subscription, error) {
			return events.Subscribe(e.bus, events.NodeDeletedTopic, func(ctx context.Context, ev *events.NodeDeletedEvent) error {
				id, err := primitive.ObjectIDFromHex(ev.NodeId)
				if err != nil {
					return err
				}
				parent, err := primitive.ObjectIDFromHex(ev.ParentId)
				if err != nil {
					return err
				}
				return e.OnDelete(ctx, id, parent, ev.Size)
			})
		},
		func() (events.Subscription, error) {
			return events.Subscribe(e.bus, shares.SharePermissionsChangedTopic, func(ctx context.Context, ev *shares.SharePermissionsChangedEvent) error {
				return e.OnPermissionsChanged(ctx, &ev.Share)
			})
		},
		func() (events.Subscription, error) {
			return events.Subscribe(e.bus, shares.BeforeShareDeletedTopic, func(ctx context.Context, ev *shares.BeforeShareDeletedEvent) error {
				return e.OnUnshare(ctx, &ev.Share)
			})
		},
	}

	subs := make([]events.Subscription, 0, len(subscriptions))
	for _, subscribe := range subscriptions {
		sub, err := subscribe()
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return fmt.Errorf("While starting propagation engine: %w", err)
		}
		subs = append(subs, sub)
	}
	e.subs = subs
	return nil
}

func (e *Engine) Stop() error {
	var errs []error
	for _, sub := range e.subs {
		errs = append(errs, sub.Unsubscribe())
	}
	e.subs = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("While stopping propagation engine: %w", err)
	}
	return nil
}

// update carries the etag and modification time shared by all nodes
// touched by one propagation.
type update struct {
	etag     string
	modTime  int64
	bumped   map[primitive.ObjectID]bool
	followed map[primitive.ObjectID]bool
}

func (e *Engine) newUpdate() *update {
	return &update{
		etag:     nodes.NewEtag(),
		modTime:  e.now().Unix(),
		bumped:   make(map[primitive.ObjectID]bool),
		followed: make(map[primitive.ObjectID]bool),
	}
}

// OnWrite propagates a content change of nodeId. A sizeDelta of
// [nodes.SizeUnknown] flags the ancestors for a recount.
func (e *Engine) OnWrite(ctx context.Context, nodeId primitive.ObjectID, sizeDelta int64) error {
	e.metrics.Propagation("write")

	node, err := e.nodes.Get(ctx, nodeId)
	if err != nil {
		return fmt.Errorf("While propagating write: %w", err)
	}
	ancestors, err := e.nodes.Ancestors(ctx, nodeId)
	if err != nil {
		return fmt.Errorf("While propagating write: %w", err)
	}

	u := e.newUpdate()
	if err := e.applyOwner(ctx, u, nodes.Ids(ancestors), sizeDelta); err != nil {
		return err
	}
	chain := append([]primitive.ObjectID{nodeId}, nodes.Ids(ancestors)...)
	return e.bumpObservers(ctx, u, node.Owner, chain)
}

// OnRename propagates a move of nodeId away from oldParentId. size is
// subtracted from the old chain and added to the new one.
func (e *Engine) OnRename(ctx context.Context, nodeId primitive.ObjectID, oldParentId primitive.ObjectID, size int64) error {
	e.metrics.Propagation("rename")

	node, err := e.nodes.Get(ctx, nodeId)
	if err != nil {
		return fmt.Errorf("While propagating rename: %w", err)
	}
	newChain, err := e.nodes.Ancestors(ctx, nodeId)
	if err != nil {
		return fmt.Errorf("While propagating rename: %w", err)
	}
	oldChain, err := e.chain(ctx, oldParentId)
	if errors.Is(err, nodes.ErrNodeNotFound) {
		oldChain = nil
	} else if err != nil {
		return fmt.Errorf("While propagating rename: %w", err)
	}

	newIds := nodes.Ids(newChain)
	oldIds := nodes.Ids(oldChain)
	var common, oldOnly, newOnly []primitive.ObjectID
	for _, id := range oldIds {
		if slices.Contains(newIds, id) {
			common = append(common, id)
		} else {
			oldOnly = append(oldOnly, id)
		}
	}
	for _, id := range newIds {
		if !slices.Contains(oldIds, id) {
			newOnly = append(newOnly, id)
		}
	}

	u := e.newUpdate()
	if size == nodes.SizeUnknown {
		if err := e.applyOwner(ctx, u, slices.Concat(oldOnly, newOnly), nodes.SizeUnknown); err != nil {
			return err
		}
	} else {
		if err := e.applyOwner(ctx, u, oldOnly, -size); err != nil {
			return err
		}
		if err := e.applyOwner(ctx, u, newOnly, size); err != nil {
			return err
		}
	}
	if err := e.applyOwner(ctx, u, common, 0); err != nil {
		return err
	}

	chain := slices.Concat([]primitive.ObjectID{nodeId}, newIds, oldOnly)
	return e.bumpObservers(ctx, u, node.Owner, chain)
}

// OnDelete propagates the removal of nodeId, which had size, from parentId.
func (e *Engine) OnDelete(ctx context.Context, nodeId primitive.ObjectID, parentId primitive.ObjectID, size int64) error {
	e.metrics.Propagation("delete")

	chain, err := e.chain(ctx, parentId)
	if err != nil {
		return fmt.Errorf("While propagating delete: %w", err)
	}

	u := e.newUpdate()
	delta := -size
	if size == nodes.SizeUnknown {
		delta = nodes.SizeUnknown
	}
	if err := e.applyOwner(ctx, u, nodes.Ids(chain), delta); err != nil {
		return err
	}
	ids := append([]primitive.ObjectID{nodeId}, nodes.Ids(chain)...)
	return e.bumpObservers(ctx, u, chain[0].Owner, ids)
}

// OnPermissionsChanged bumps the etag above the mounts of the recipients
// of share. Sizes do not change.
func (e *Engine) OnPermissionsChanged(ctx context.Context, share *shares.Share) error {
	e.metrics.Propagation("permissions")

	u := e.newUpdate()
	return e.bumpRecipients(ctx, u, share, false)
}

// OnUnshare bumps the etag above the mounts of the recipients of share
// and of re-shares they created below it, whose view disappears.
func (e *Engine) OnUnshare(ctx context.Context, share *shares.Share) error {
	e.metrics.Propagation("unshare")

	u := e.newUpdate()
	return e.bumpRecipients(ctx, u, share, true)
}

// chain returns id followed by its ancestors.
func (e *Engine) chain(ctx context.Context, id primitive.ObjectID) ([]nodes.Node, error) {
	node, err := e.nodes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ancestors, err := e.nodes.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]nodes.Node{*node}, ancestors...), nil
}

func (e *Engine) applyOwner(ctx context.Context, u *update, ids []primitive.ObjectID, delta int64) error {
	if len(ids) == 0 {
		return nil
	}
	var err error
	switch delta {
	case nodes.SizeUnknown:
		err = e.nodes.MarkNeedsRecount(ctx, ids, u.etag, u.modTime)
	case 0:
		err = e.nodes.BumpEtag(ctx, ids, u.etag, u.modTime)
	default:
		err = e.nodes.ApplyDelta(ctx, ids, delta, u.etag, u.modTime)
	}
	if err != nil {
		return fmt.Errorf("While updating owner chain: %w", err)
	}
	for _, id := range ids {
		u.bumped[id] = true
	}
	return nil
}

// bumpObservers bumps the etag for every user other than owner who sees a
// node of chain, either through a cached mount or through a share that is
// not mounted yet. Re-shares point at the owner's nodes, so recipients of
// re-shares anywhere on the chain are found the same way.
func (e *Engine) bumpObservers(ctx context.Context, u *update, owner string, chain []primitive.ObjectID) error {
	cached, err := e.cache.GetMountsForRootIds(ctx, chain)
	if err != nil {
		return err
	}
	seen := make(map[string]map[primitive.ObjectID]bool)
	mark := func(user string, root primitive.ObjectID) bool {
		if seen[user] == nil {
			seen[user] = make(map[primitive.ObjectID]bool)
		}
		if seen[user][root] {
			return false
		}
		seen[user][root] = true
		return true
	}

	for _, m := range cached {
		if m.User == owner || !mark(m.User, m.RootId) {
			continue
		}
		if err := e.bumpAbove(ctx, u, m.User, m.Target); err != nil {
			return err
		}
	}

	// recipients whose mount is not in the cache yet
	grants, err := e.shares.GetSharesByNodes(ctx, chain)
	if err != nil {
		return err
	}
	for i := range grants {
		share := &grants[i]
		recipients, err := shares.Recipients(ctx, e.members, share)
		if err != nil {
			return err
		}
		for _, user := range recipients {
			if user == owner || !mark(user, share.NodeId) {
				continue
			}
			if err := e.bumpAbove(ctx, u, user, defaultTarget(share, user)); err != nil {
				return err
			}
		}
	}
	return nil
}

// bumpRecipients bumps the etag above the mount of share for each of its
// recipients. With reshares set, re-shares the recipients created of the
// node or below it are followed as well.
func (e *Engine) bumpRecipients(ctx context.Context, u *update, share *shares.Share, reshares bool) error {
	// re-shares may point back at an earlier recipient
	if u.followed[share.Id] {
		return nil
	}
	u.followed[share.Id] = true

	recipients, err := shares.Recipients(ctx, e.members, share)
	if err != nil {
		return err
	}
	cached, err := e.cache.GetMountsForRootIds(ctx, []primitive.ObjectID{share.NodeId})
	if err != nil {
		return err
	}

	for _, user := range recipients {
		target := defaultTarget(share, user)
		for _, m := range cached {
			if m.User == user {
				target = m.Target
				break
			}
		}
		if err := e.bumpAbove(ctx, u, user, target); err != nil {
			return err
		}

		if !reshares {
			continue
		}
		created, err := e.shares.GetSharesBy(ctx, user, shares.ShareTypeAny, nil, false)
		if err != nil {
			return err
		}
		for i := range created {
			reshare := &created[i]
			if reshare.Id == share.Id || reshare.Owner != share.Owner {
				continue
			}
			below, err := e.nodes.IsAncestor(ctx, share.NodeId, reshare.NodeId)
			if errors.Is(err, nodes.ErrNodeNotFound) {
				below = reshare.NodeId == share.NodeId
			} else if err != nil {
				return err
			}
			if !below {
				continue
			}
			if err := e.bumpRecipients(ctx, u, reshare, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// bumpAbove bumps the etag of the folder containing target in the
// namespace of user and of all its ancestors. When that folder lies inside
// another mount, the chain is followed up to the mount root and continues
// above the target of that mount.
func (e *Engine) bumpAbove(ctx context.Context, u *update, user string, target string) error {
	current, err := e.cache.GetMountsForUser(ctx, user)
	if err != nil {
		return err
	}
	return e.bumpAboveIn(ctx, u, user, path.Clean("/"+target), current)
}

func (e *Engine) bumpAboveIn(ctx context.Context, u *update, user string, target string, current []mounts.CachedMount) error {
	if target == "/" {
		return nil
	}
	dir := path.Dir(target)
	parent, err := e.locator.Resolve(ctx, user, dir, current)
	if errors.Is(err, nodes.ErrNodeNotFound) {
		e.log.Debug("no folder above mount, nothing to bump", "user", user, "target", target)
		return nil
	}
	if err != nil {
		return fmt.Errorf("While resolving folder above %s of %s: %w", target, user, err)
	}

	chain := []primitive.ObjectID{parent.Id}
	outer := mounts.MountAt(current, dir)
	if outer == nil || parent.Id != outer.RootId {
		ancestors, err := e.nodes.Ancestors(ctx, parent.Id)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			chain = append(chain, a.Id)
			if outer != nil && a.Id == outer.RootId {
				break
			}
		}
	}

	ids := make([]primitive.ObjectID, 0, len(chain))
	for _, id := range chain {
		if !u.bumped[id] {
			ids = append(ids, id)
			u.bumped[id] = true
		}
	}
	if len(ids) > 0 {
		if err := e.nodes.BumpEtag(ctx, ids, u.etag, u.modTime); err != nil {
			return fmt.Errorf("While bumping etag above %s of %s: %w", target, user, err)
		}
		e.metrics.EtagBumps(1)
	}

	if outer != nil {
		return e.bumpAboveIn(ctx, u, user, outer.Target, current)
	}
	return nil
}

func defaultTarget(share *shares.Share, user string) string {
	if target := share.TargetFor(user); target != "" {
		return target
	}
	return "/" + share.NodeName
}
