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

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CacheStore persists the mount points of all users. Writes are
// idempotent and keyed by user and target.
type CacheStore interface {
	// GetMountsForUser returns the mounts of user ordered by target.
	GetMountsForUser(ctx context.Context, user string) ([]CachedMount, error)
	// GetMountsForRootIds returns the mounts of any user rooted at one of rootIds.
	GetMountsForRootIds(ctx context.Context, rootIds []primitive.ObjectID) ([]CachedMount, error)
	// Upsert creates the mount or replaces the one at the same target.
	Upsert(ctx context.Context, mount *MountPoint) error
	// Remove deletes the mount of user at target, if any.
	Remove(ctx context.Context, user string, target string) error
}
