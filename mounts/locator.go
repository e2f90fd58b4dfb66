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
	"path"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/nodes"
)

// Locator resolves paths in the namespace of a user. Paths inside a mount
// are translated into the home of the mounted node's owner; all other
// paths address the user's own home.
type Locator struct {
	nodes nodes.Store
}

func NewLocator(store nodes.Store) *Locator {
	return &Locator{nodes: store}
}

// MountAt returns the mount containing p, if any.
func MountAt(mounts []CachedMount, p string) *CachedMount {
	var found *CachedMount
	for i := range mounts {
		target := mounts[i].Target
		if p == target || strings.HasPrefix(p, target+"/") {
			// nested mounts: the innermost one wins
			if found == nil || len(target) > len(found.Target) {
				found = &mounts[i]
			}
		}
	}
	return found
}

// Resolve returns the node at p as seen by user.
func (l *Locator) Resolve(ctx context.Context, user string, p string, mounts []CachedMount) (*nodes.Node, error) {
	p = path.Clean("/" + p)

	mount := MountAt(mounts, p)
	if mount == nil {
		return l.nodes.GetByPath(ctx, user, p)
	}
	root, err := l.nodes.Get(ctx, mount.RootId)
	if err != nil {
		return nil, err
	}
	if p == mount.Target {
		return root, nil
	}
	return l.nodes.GetByPath(ctx, root.Owner, path.Join(root.Path, strings.TrimPrefix(p, mount.Target)))
}

// IsFolder reports whether p resolves to a folder for user.
func (l *Locator) IsFolder(ctx context.Context, user string, p string, mounts []CachedMount) (bool, error) {
	if path.Clean("/"+p) == "/" {
		return true, nil
	}
	node, err := l.Resolve(ctx, user, p, mounts)
	if errors.Is(err, nodes.ErrNodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return node.IsDir, nil
}

// Occupant returns the id of the node found at p, or the zero id if p is free.
func (l *Locator) Occupant(ctx context.Context, user string, p string, mounts []CachedMount) (primitive.ObjectID, error) {
	node, err := l.Resolve(ctx, user, p, mounts)
	if errors.Is(err, nodes.ErrNodeNotFound) {
		return primitive.NilObjectID, nil
	}
	if err != nil {
		return primitive.NilObjectID, err
	}
	return node.Id, nil
}
