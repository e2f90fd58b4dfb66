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

// Package resolver merges the raw shares a user receives into one
// effective grant per shared node.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/groups"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/shares/shares"
)

// SuperShare is the effective grant of one user on one node. It is
// computed on demand and never stored.
type SuperShare struct {
	// Id of the representative share, the earliest one that survived the merge
	Id          primitive.ObjectID
	NodeId      primitive.ObjectID
	NodeName    string
	Owner       string
	Initiator   string
	Recipient   string
	ShareType   shares.ShareType
	Permissions shares.Permissions
	Attributes  shares.Attributes
	// mount target of the representative share as seen by Recipient
	Target  string
	Created time.Time
	// surviving shares, earliest first
	Shares []shares.Share
}

// Representative returns the share update and delete requests are routed to.
func (s *SuperShare) Representative() *shares.Share {
	return &s.Shares[0]
}

type Params struct {
	fx.In

	Store     shares.Store
	Directory groups.Directory
	Logger    *logging.Logger
}

type Result struct {
	fx.Out

	Resolver *Resolver
}

type Resolver struct {
	log   *slog.Logger
	store shares.Store
	dir   groups.Directory
}

func New(p Params) Result {
	return Result{
		Resolver: &Resolver{
			log:   p.Logger.GetLogger("resolver"),
			store: p.Store,
			dir:   p.Directory,
		},
	}
}

// Resolve returns the super shares user can see, in the order their nodes
// first appear in the fetched batches.
func (r *Resolver) Resolve(ctx context.Context, user string) ([]SuperShare, error) {
	batches, err := r.fetch(ctx, user, nil)
	if err != nil {
		return nil, err
	}
	return Merge(user, batches...), nil
}

// ResolveNode returns the super share of user on a single node, or nil if
// user has no effective grant on it.
func (r *Resolver) ResolveNode(ctx context.Context, user string, nodeId primitive.ObjectID) (*SuperShare, error) {
	batches, err := r.fetch(ctx, user, &nodeId)
	if err != nil {
		return nil, err
	}
	merged := Merge(user, batches...)
	if len(merged) == 0 {
		return nil, nil
	}
	return &merged[0], nil
}

// fetch returns the user's direct shares followed by one batch per
// group-like kind.
func (r *Resolver) fetch(ctx context.Context, user string, nodeId *primitive.ObjectID) ([][]shares.Share, error) {
	batches := make([][]shares.Share, 0, len(shares.GroupKinds)+1)

	direct, err := r.store.GetSharedWith(ctx, shares.ShareTypeUser, []string{user}, nodeId)
	if err != nil {
		return nil, fmt.Errorf("While retrieving shares with %s: %w", user, err)
	}
	batches = append(batches, direct)

	for _, kind := range shares.GroupKinds {
		names, err := r.dir.MembershipsOf(ctx, user, kind)
		if err != nil {
			return nil, fmt.Errorf("While retrieving %s memberships of %s: %w", kind, user, err)
		}
		if len(names) == 0 {
			continue
		}
		batch, err := r.store.GetSharedWith(ctx, kind, names, nodeId)
		if err != nil {
			return nil, fmt.Errorf("While retrieving %s shares of %s: %w", kind, user, err)
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// Merge computes the super shares of user from batches of raw shares.
//
// Shares owned or initiated by user and pending shares are ignored.
// Shares with no permissions opt out; a node whose shares all opt out is
// omitted. Permissions of the remaining shares are or-ed together and
// their attributes unioned, where true wins over false for boolean
// attributes and any other value is taken from the earliest share. Target
// and representative id come from the earliest share.
func Merge(user string, batches ...[]shares.Share) []SuperShare {
	order := make([]primitive.ObjectID, 0)
	byNode := make(map[primitive.ObjectID][]shares.Share)

	for _, batch := range batches {
		for _, share := range batch {
			if share.Owner == user || share.Initiator == user {
				continue
			}
			if share.Status == shares.StatusPending {
				continue
			}
			if _, seen := byNode[share.NodeId]; !seen {
				order = append(order, share.NodeId)
			}
			byNode[share.NodeId] = append(byNode[share.NodeId], share)
		}
	}

	result := make([]SuperShare, 0, len(order))
	for _, nodeId := range order {
		if merged, ok := mergeNode(user, byNode[nodeId]); ok {
			result = append(result, merged)
		}
	}
	return result
}

func mergeNode(user string, candidates []shares.Share) (SuperShare, bool) {
	survivors := make([]shares.Share, 0, len(candidates))
	seen := make(map[primitive.ObjectID]bool)
	for _, share := range candidates {
		if share.Permissions == 0 || seen[share.Id] {
			continue
		}
		seen[share.Id] = true
		survivors = append(survivors, share)
	}
	if len(survivors) == 0 {
		return SuperShare{}, false
	}

	slices.SortStableFunc(survivors, func(a, b shares.Share) int {
		if a.Before(&b) {
			return -1
		}
		if b.Before(&a) {
			return 1
		}
		return 0
	})

	first := &survivors[0]
	super := SuperShare{
		Id:         first.Id,
		NodeId:     first.NodeId,
		NodeName:   first.NodeName,
		Owner:      first.Owner,
		Initiator:  first.Initiator,
		Recipient:  user,
		ShareType:  first.ShareType,
		Attributes: first.Attributes,
		Target:     first.TargetFor(user),
		Created:    first.Created,
		Shares:     survivors,
	}

	for i := range survivors {
		super.Permissions |= survivors[i].Permissions
		if i > 0 {
			super.Attributes = mergeAttributes(super.Attributes, survivors[i].Attributes)
		}
	}

	return super, true
}

// mergeAttributes adds the entries of later to earlier. A true boolean
// replaces false; otherwise the earlier value stays.
func mergeAttributes(earlier shares.Attributes, later shares.Attributes) shares.Attributes {
	merged := earlier
	for _, attr := range later.All() {
		current, ok := merged.Get(attr.Scope, attr.Key)
		if ok {
			was, isBool := current.(bool)
			now, laterBool := attr.Value.(bool)
			if !isBool || !laterBool || was || !now {
				continue
			}
		}
		// cannot fail: the entry was valid in later
		merged, _ = merged.With(attr)
	}
	return merged
}
