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

package nodes

import (
	"context"
	"errors"
	"math"
	"path"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/entities"
)

var ErrNodeNotFound = errors.New("node not found")

// SizeUnknown is passed as size delta when a change in size is not known.
// Affected folders are flagged for a recount instead.
const SizeUnknown int64 = math.MinInt64

type NodePrototype struct {
	entities.Prototype

	Id           entities.Definable[primitive.ObjectID] `bson:"_id"`
	ParentDir    entities.Definable[primitive.ObjectID] `bson:"parentDir"`
	Owner        entities.Definable[string]             `bson:"owner"`
	Path         entities.Definable[string]             `bson:"path"`
	IsDir        entities.Definable[bool]               `bson:"isDir"`
	Size         entities.Definable[int64]              `bson:"size"`
	Etag         entities.Definable[string]             `bson:"etag"`
	ModTime      entities.Definable[int64]              `bson:"modTime"`
	NeedsRecount entities.Definable[bool]               `bson:"needsRecount"`
}

type Node struct {
	Id primitive.ObjectID `bson:"_id"`
	// zero for the root of a home
	ParentDir primitive.ObjectID `bson:"parentDir"`
	// user whose home contains the node
	Owner string `bson:"owner"`
	// absolute path inside the owner's home
	Path  string `bson:"path"`
	IsDir bool   `bson:"isDir"`
	// File size, or for folders the sum of all files below
	Size int64 `bson:"size"`
	// changes whenever the node or anything below it changes
	Etag string `bson:"etag"`
	// Unix timestamp of last modification
	ModTime int64 `bson:"modTime"`
	// Size of a folder is stale and must be recounted before use
	NeedsRecount bool `bson:"needsRecount"`
}

func (n *Node) Name() string {
	return path.Base(n.Path)
}

func (n *Node) IsRoot() bool {
	return n.ParentDir.IsZero()
}

// Store is the metadata side of the storage layer.
type Store interface {
	Get(ctx context.Context, id primitive.ObjectID) (*Node, error)
	GetByPath(ctx context.Context, owner string, p string) (*Node, error)
	// Ancestors returns the parents of id, nearest first, ending at the root.
	Ancestors(ctx context.Context, id primitive.ObjectID) ([]Node, error)
	Children(ctx context.Context, id primitive.ObjectID) ([]Node, error)

	// Create adds a node, creating missing parent folders. If a node
	// exists at the path it is returned instead.
	Create(ctx context.Context, node *Node) error
	// Move changes the parent and name of a node and all paths below it.
	Move(ctx context.Context, id primitive.ObjectID, newParent primitive.ObjectID, newName string) error
	// Delete removes a node and everything below it.
	Delete(ctx context.Context, id primitive.ObjectID) error

	// ApplyDelta adds sizeDelta to the size of every node in ids and sets
	// etag and modTime.
	ApplyDelta(ctx context.Context, ids []primitive.ObjectID, sizeDelta int64, etag string, modTime int64) error
	// BumpEtag sets etag and modTime without touching the size.
	BumpEtag(ctx context.Context, ids []primitive.ObjectID, etag string, modTime int64) error
	// MarkNeedsRecount flags folders whose size is stale and sets etag and modTime.
	MarkNeedsRecount(ctx context.Context, ids []primitive.ObjectID, etag string, modTime int64) error
	// CorrectFolderSize recomputes the size of a folder from its children
	// and clears the recount flag.
	CorrectFolderSize(ctx context.Context, id primitive.ObjectID) (int64, error)
	// FolderSize returns the size of a node, correcting it first if flagged.
	FolderSize(ctx context.Context, id primitive.ObjectID) (int64, error)

	// IsAncestor reports whether ancestor is id or one of its parents.
	IsAncestor(ctx context.Context, ancestor primitive.ObjectID, id primitive.ObjectID) (bool, error)
}

func NewEtag() string {
	return uuid.NewString()
}

// Ids returns the ids of nodes.
func Ids(nodes []Node) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Id
	}
	return ids
}

func isAncestor(ctx context.Context, s Store, ancestor primitive.ObjectID, id primitive.ObjectID) (bool, error) {
	if ancestor == id {
		return true, nil
	}
	ancestors, err := s.Ancestors(ctx, id)
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a.Id == ancestor {
			return true, nil
		}
	}
	return false, nil
}

func folderSize(ctx context.Context, s Store, id primitive.ObjectID) (int64, error) {
	node, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if node.IsDir && node.NeedsRecount {
		return s.CorrectFolderSize(ctx, id)
	}
	return node.Size, nil
}

func sumChildren(ctx context.Context, s Store, children []Node) (int64, error) {
	var size int64
	for _, child := range children {
		if child.IsDir && child.NeedsRecount {
			childSize, err := s.CorrectFolderSize(ctx, child.Id)
			if err != nil {
				return 0, err
			}
			size += childSize
		} else {
			size += child.Size
		}
	}
	return size, nil
}
