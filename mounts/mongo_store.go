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

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStore struct {
	mounts *mongo.Collection
}

func NewMongoStore(db *mongo.Database) CacheStore {
	return &mongoStore{
		mounts: db.Collection("mounts"),
	}
}

func (s *mongoStore) GetMountsForUser(ctx context.Context, user string) ([]CachedMount, error) {
	filter := MountPrototype{}
	filter.User.Set(user)
	return s.find(ctx, &filter)
}

func (s *mongoStore) GetMountsForRootIds(ctx context.Context, rootIds []primitive.ObjectID) ([]CachedMount, error) {
	if len(rootIds) == 0 {
		return []CachedMount{}, nil
	}
	return s.find(ctx, bson.M{"rootId": bson.M{"$in": rootIds}})
}

func (s *mongoStore) Upsert(ctx context.Context, mount *MountPoint) error {
	filter := MountPrototype{}
	filter.User.Set(mount.User)
	filter.Target.Set(mount.Target)

	opts := options.Update().SetUpsert(true)
	_, err := s.mounts.UpdateOne(ctx, filter, bson.M{"$set": mount.toPrototype()}, opts)
	if err != nil {
		return fmt.Errorf("While writing mount %s of %s: %w", mount.Target, mount.User, err)
	}
	return nil
}

func (s *mongoStore) Remove(ctx context.Context, user string, target string) error {
	filter := MountPrototype{}
	filter.User.Set(user)
	filter.Target.Set(target)

	_, err := s.mounts.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("While removing mount %s of %s: %w", target, user, err)
	}
	return nil
}

func (s *mongoStore) find(ctx context.Context, filter any) ([]CachedMount, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user", Value: 1}, {Key: "target", Value: 1}})
	cursor, err := s.mounts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("While retrieving mounts: %w", err)
	}
	mounts := make([]CachedMount, 0)
	if err := cursor.All(ctx, &mounts); err != nil {
		return nil, fmt.Errorf("While retrieving mounts: %w", err)
	}
	return mounts, nil
}
