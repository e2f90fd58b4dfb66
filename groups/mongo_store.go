package groups

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"umbasa.net/seraph-mounts/shares/shares"
)

type mongoStore struct {
	groups *mongo.Collection
}

func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{
		groups: db.Collection("groups"),
	}
}

func keyFilter(kind shares.ShareType, name string) *GroupPrototype {
	filter := GroupPrototype{}
	filter.Kind.Set(kind)
	filter.Name.Set(name)
	return &filter
}

func (s *mongoStore) MembershipsOf(ctx context.Context, user string, kind shares.ShareType) ([]string, error) {
	filter := bson.M{"kind": kind, "users": user}
	opts := options.Find().SetSort(bson.M{"name": 1}).SetProjection(bson.M{"name": 1})

	cursor, err := s.groups.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("While retrieving memberships of %s: %w", user, err)
	}
	groups := make([]Group, 0)
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("While retrieving memberships of %s: %w", user, err)
	}
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	return names, nil
}

func (s *mongoStore) Members(ctx context.Context, kind shares.ShareType, name string) ([]string, error) {
	group, err := s.Get(ctx, kind, name)
	if errors.Is(err, ErrGroupNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if group.Users == nil {
		return []string{}, nil
	}
	return group.Users, nil
}

func (s *mongoStore) Get(ctx context.Context, kind shares.ShareType, name string) (*Group, error) {
	group := Group{}
	err := s.groups.FindOne(ctx, keyFilter(kind, name)).Decode(&group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("While retrieving %s %s: %w", kind, name, err)
	}
	return &group, nil
}

func (s *mongoStore) Save(ctx context.Context, group *Group) (*Group, error) {
	update := GroupPrototype{}
	update.Users.Set(group.Users)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)
	res := s.groups.FindOneAndUpdate(ctx, keyFilter(group.Kind, group.Name), bson.M{"$set": update}, opts)

	var old *Group
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		old = nil
	} else if res.Err() != nil {
		return nil, fmt.Errorf("While saving %s %s: %w", group.Kind, group.Name, res.Err())
	} else {
		old = &Group{}
		if err := res.Decode(old); err != nil {
			return nil, err
		}
	}

	saved, err := s.Get(ctx, group.Kind, group.Name)
	if err != nil {
		return nil, err
	}
	group.Id = saved.Id
	return old, nil
}

func (s *mongoStore) Delete(ctx context.Context, kind shares.ShareType, name string) (*Group, error) {
	old := Group{}
	err := s.groups.FindOneAndDelete(ctx, keyFilter(kind, name)).Decode(&old)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("While deleting %s %s: %w", kind, name, err)
	}
	return &old, nil
}
