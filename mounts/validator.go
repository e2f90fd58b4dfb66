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
	"fmt"
	"log/slog"
	"path"

	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/metrics"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/resolver"
	"umbasa.net/seraph-mounts/shares/shares"
)

type ValidatorParams struct {
	fx.In

	Shares  shares.Store
	Nodes   nodes.Store
	Logger  *logging.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type ValidatorResult struct {
	fx.Out

	Validator *TargetValidator
	Locator   *Locator
}

// TargetValidator computes the final mount target of a super share and
// repairs the stored target when it is no longer usable.
type TargetValidator struct {
	log     *slog.Logger
	shares  shares.Store
	locator *Locator
	metrics *metrics.Metrics
}

func NewValidator(p ValidatorParams) ValidatorResult {
	locator := NewLocator(p.Nodes)
	return ValidatorResult{
		Validator: &TargetValidator{
			log:     p.Logger.GetLogger("validator"),
			shares:  p.Shares,
			locator: locator,
			metrics: p.Metrics,
		},
		Locator: locator,
	}
}

// VerifyMountPoint returns the target super is mounted at for user.
//
// The stored target, or "/<node name>" if there is none, is moved to the
// top level when its parent folder does not resolve for user. When another
// node occupies the target in current, claimed or the user's home, " (n)"
// is appended using the smallest free n >= 2. A target that differs from
// the stored one is written back to the representative share and to super.
func (v *TargetValidator) VerifyMountPoint(ctx context.Context, user string, super *resolver.SuperShare, current []CachedMount, claimed []MountPoint) (string, error) {
	stored := super.Target
	reason := ""

	desired := stored
	if desired == "" {
		desired = "/" + defaultName(super)
		reason = "default"
	}
	desired = path.Clean("/" + desired)
	if desired == "/" {
		desired = "/" + defaultName(super)
	}

	parent := path.Dir(desired)
	ok, err := v.locator.IsFolder(ctx, user, parent, current)
	if err != nil {
		return "", fmt.Errorf("While resolving parent of mount %s: %w", desired, err)
	}
	if !ok {
		v.log.Debug("mount parent does not resolve, moving to top level", "user", user, "target", desired)
		desired = "/" + path.Base(desired)
		reason = "orphan"
	}

	final := desired
	for n := 2; ; n++ {
		taken, err := v.occupied(ctx, user, final, super, current, claimed)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		final = fmt.Sprintf("%s (%d)", desired, n)
		if reason == "" {
			reason = "collision"
		}
	}

	if final == stored {
		return final, nil
	}

	err = v.shares.UpdateTarget(ctx, super.Id, user, final)
	if err != nil {
		return "", fmt.Errorf("While updating target of share %s: %w", super.Id.Hex(), err)
	}
	super.Target = final
	v.metrics.TargetRepair(reason)
	v.log.Debug("mount target changed", "user", user, "share", super.Id.Hex(), "from", stored, "to", final, "reason", reason)

	return final, nil
}

func (v *TargetValidator) occupied(ctx context.Context, user string, p string, super *resolver.SuperShare, current []CachedMount, claimed []MountPoint) (bool, error) {
	for _, m := range claimed {
		if m.Target == p && m.RootId != super.NodeId {
			return true, nil
		}
	}
	for _, m := range current {
		if m.Target == p {
			return m.RootId != super.NodeId, nil
		}
	}
	occupant, err := v.locator.Occupant(ctx, user, p, current)
	if err != nil {
		return false, fmt.Errorf("While checking mount target %s: %w", p, err)
	}
	return !occupant.IsZero() && occupant != super.NodeId, nil
}

func defaultName(super *resolver.SuperShare) string {
	name := path.Base(path.Clean("/" + super.NodeName))
	if name == "/" || name == "." {
		return super.NodeId.Hex()
	}
	return name
}
