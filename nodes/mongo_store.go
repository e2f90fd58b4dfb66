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
	"fmt"
	"path"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStore struct {
	nodes *mongo.Collection
}

func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{
		nodes: db.Collection("nodes"),
	}
}

func (s *mongoStore) Get(ctx context.Context, id primitive.ObjectID) (*Node, error) {
	filter := NodePrototype{}
	filter.Id.Set(id)
	return s.findOne(ctx, filter)
}

func (s *mongoStore) GetByPath(ctx context.Context, owner string, p string) (*Node, error) {
	filter := NodePrototype{}
	filter.Owner.Set(owner)
	filter.Path.Set(path.Clean("/" + p))
	return s.findOne(ctx, filter)
}

func (s *mongoStore) findOne(ctx context.Context, filter any) (*Node, error) {
	node := Node{}
	err := s.nodes.FindOne(ctx, filter).Decode(&node)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("While retrieving node: %w", err)
	}
	return &node, nil
}

func (s *mongoStore) Ancestors(ctx context.Context, id primitive.ObjectID) ([]Node, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": id}}},
		{{Key: "$graphLookup", Value: bson.M{
			"from":             s.nodes.Name(),
			"startWith":        "$parentDir",
			"connectFromField": "parentDir",
			"connectToField":   "_id",
			"as":               "ancestors",
			"depthField":       "depth",
		}}},
		{{Key: "$unwind", Value: "$ancestors"}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$ancestors"}}},
		{{Key: "$sort", Value: bson.M{"depth": 1}}},
	}

	cursor, err := s.nodes.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("While retrieving ancestors of %s: %w", id.Hex(), err)
	}
	ancestors := make([]Node, 0)
	if err := cursor.All(ctx, &ancestors); err != nil {
		return nil, fmt.Errorf("While retrieving ancestors of %s: %w", id.Hex(), err)
	}
	if len(ancestors) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	return ancestors, nil
}

func (s *mongoStore) Children(ctx context.Context, id primitive.ObjectID) ([]Node, error) {
	filter := NodePrototype{}
	filter.ParentDir.Set(id)

	cursor, err := s.nodes.Find(ctx, filter, options.Find().SetSort(bson.M{"path": 1}))
	if err != nil {
		return nil, fmt.Errorf("While listing children of %s: %w", id.Hex(), err)
	}
	children := make([]Node, 0)
	if err := cursor.All(ctx, &children); err != nil {
		return nil, fmt.Errorf("While listing children of %s: %w", id.Hex(), err)
	}
	return children, nil
}

func (s *mongoStore) Create(ctx context.Context, node *Node) error {
	created, err := s.upsert(ctx, node.Owner, path.Clean("/"+node.Path), node)
	if err != nil {
		return err
	}
	*node = *created
	return nil
}

func (s *mongoStore) upsert(ctx context.Context, owner string, p string, template *Node) (*Node, error) {
	proto := NodePrototype{}
	proto.Owner.Set(owner)
	proto.Path.Set(p)
	proto.IsDir.Set(true)
	proto.Size.Set(0)
	proto.Etag.Set(NewEtag())
	proto.ModTime.Set(time.Now().Unix())
	proto.NeedsRecount.Set(false)
	if template != nil {
		proto.IsDir.Set(template.IsDir)
		proto.Size.Set(template.Size)
		if template.Etag != "" {
			proto.Etag.Set(template.Etag)
		}
		if template.ModTime != 0 {
			proto.ModTime.Set(template.ModTime)
		}
	}

	if p != "/" {
		parent, err := s.upsert(ctx, owner, path.Dir(p), nil)
		if err != nil {
			return nil, err
		}
		proto.ParentDir.Set(parent.Id)
	} else {
		proto.ParentDir.Set(primitive.NilObjectID)
	}

	filter := NodePrototype{}
	filter.Owner.Set(owner)
	filter.Path.Set(p)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	node := Node{}
	err := s.nodes.FindOneAndUpdate(ctx, filter, bson.M{"$setOnInsert": proto}, opts).Decode(&node)
	if err != nil {
		return nil, fmt.Errorf("While creating node %s: %w", p, err)
	}
	return &node, nil
}

func (s *mongoStore) Move(ctx context.Context, id primitive.ObjectID, newParent primitive.ObjectID, newName string) error {
	node, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	parent, err := s.Get(ctx, newParent)
	if err != nil {
		return err
	}
	oldPath := node.Path
	newPath := path.Join(parent.Path, newName)

	update := NodePrototype{}
	update.ParentDir.Set(newParent)
	update.Path.Set(newPath)
	_, err = s.nodes.UpdateByID(ctx, id, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("While moving node %s: %w", oldPath, err)
	}

	descendants := bson.M{
		"owner": node.Owner,
		"path":  bson.M{"$regex": "^" + regexp.QuoteMeta(oldPath+"/")},
	}
	rewrite := bson.A{bson.M{"$set": bson.M{
		"path": bson.M{"$concat": bson.A{
			newPath,
			bson.M{"$substrCP": bson.A{"$path", len([]rune(oldPath)), bson.M{"$strLenCP": "$path"}}},
		}},
	}}}
	_, err = s.nodes.UpdateMany(ctx, descendants, rewrite)
	if err != nil {
		return fmt.Errorf("While moving children of %s: %w", oldPath, err)
	}
	return nil
}

func (s *mongoStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	node, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.nodes.DeleteMany(ctx, bson.M{
		"owner": node.Owner,
		"$or": bson.A{
			bson.M{"_id": id},
			bson.M{"path": bson.M{"$regex": "^" + regexp.QuoteMeta(node.Path+"/")}},
		},
	})
	if err != nil {
		return fmt.Errorf("While deleting node %s: %w", node.Path, err)
	}
	return nil
}

func (s *mongoStore) ApplyDelta(ctx context.Context, ids []primitive.ObjectID, sizeDelta int64, etag string, modTime int64) error {
	set := NodePrototype{}
	set.Etag.Set(etag)
	set.ModTime.Set(modTime)
	return s.updateMany(ctx, ids, bson.M{
		"$inc": bson.M{"size": sizeDelta},
		"$set": set,
	})
}

func (s *mongoStore) BumpEtag(ctx context.Context, ids []primitive.ObjectID, etag string, modTime int64) error {
	set := NodePrototype{}
	set.Etag.Set(etag)
	set.ModTime.Set(modTime)
	return s.updateMany(ctx, ids, bson.M{"$set": set})
}

func (s *mongoStore) MarkNeedsRecount(ctx context.Context, ids []primitive.ObjectID, etag string, modTime int64) error {
	// files keep their flag unset
	err := s.BumpEtag(ctx, ids, etag, modTime)
	if err != nil {
		return err
	}
	_, err = s.nodes.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "isDir": true},
		bson.M{"$set": bson.M{"needsRecount": true}})
	if err != nil {
		return fmt.Errorf("While flagging nodes for recount: %w", err)
	}
	return nil
}

func (s *mongoStore) updateMany(ctx context.Context, ids []primitive.ObjectID, update any) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.nodes.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update)
	if err != nil {
		return fmt.Errorf("While updating nodes: %w", err)
	}
	return nil
}

func (s *mongoStore) CorrectFolderSize(ctx context.Context, id primitive.ObjectID) (int64, error) {
	children, err := s.Children(ctx, id)
	if err != nil {
		return 0, err
	}
	size, err := sumChildren(ctx, s, children)
	if err != nil {
		return 0, err
	}

	update := NodePrototype{}
	update.Size.Set(size)
	update.NeedsRecount.Set(false)
	res, err := s.nodes.UpdateByID(ctx, id, bson.M{"$set": update})
	if err != nil {
		return 0, fmt.Errorf("While correcting folder size of %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return 0, ErrNodeNotFound
	}
	return size, nil
}

func (s *mongoStore) FolderSize(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return folderSize(ctx, s, id)
}

func (s *mongoStore) IsAncestor(ctx context.Context, ancestor primitive.ObjectID, id primitive.ObjectID) (bool, error) {
	return isAncestor(ctx, s, ancestor, id)
}

