package shares

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"umbasa.net/seraph-mounts/entities"
)

type mongoStore struct {
	shares *mongo.Collection
}

func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{
		shares: db.Collection("shares"),
	}
}

func (s *mongoStore) Create(ctx context.Context, share *Share) error {
	share.Id = primitive.NewObjectID()
	if share.Created.IsZero() {
		share.Created = time.Now()
	}
	// mongo stores milliseconds
	share.Created = share.Created.Truncate(time.Millisecond)

	_, err := s.shares.InsertOne(ctx, share)
	if err != nil {
		return fmt.Errorf("While inserting share: %w", err)
	}
	return nil
}

func (s *mongoStore) Update(ctx context.Context, share *Share) error {
	filter := SharePrototype{}
	filter.Id.Set(share.Id)

	res, err := s.shares.UpdateOne(ctx, filter, bson.M{"$set": share.ToUpdatePrototype()})
	if err != nil {
		return fmt.Errorf("While updating share %s: %w", share.Id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrShareNotFound
	}
	return nil
}

func (s *mongoStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	filter := SharePrototype{}
	filter.Id.Set(id)

	res, err := s.shares.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("While deleting share %s: %w", id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return ErrShareNotFound
	}
	return nil
}

func (s *mongoStore) Get(ctx context.Context, id primitive.ObjectID) (*Share, error) {
	filter := SharePrototype{}
	filter.Id.Set(id)

	share := Share{}
	err := s.shares.FindOne(ctx, filter).Decode(&share)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("While retrieving share %s: %w", id.Hex(), err)
	}
	return &share, nil
}

func (s *mongoStore) GetSharesBy(ctx context.Context, user string, shareType ShareType, nodeId *primitive.ObjectID, reshares bool) ([]Share, error) {
	filter := queryFilter(shareType, nodeId)
	if reshares {
		filter["$or"] = bson.A{
			bson.M{"initiator": user},
			bson.M{"owner": user},
		}
	} else {
		filter["initiator"] = user
	}
	return s.find(ctx, filter)
}

func (s *mongoStore) GetSharedWith(ctx context.Context, shareType ShareType, recipients []string, nodeId *primitive.ObjectID) ([]Share, error) {
	if len(recipients) == 0 {
		return []Share{}, nil
	}
	filter := queryFilter(shareType, nodeId)
	filter["recipient"] = bson.M{"$in": recipients}
	return s.find(ctx, filter)
}

func (s *mongoStore) GetSharesByNodes(ctx context.Context, nodeIds []primitive.ObjectID) ([]Share, error) {
	if len(nodeIds) == 0 {
		return []Share{}, nil
	}
	return s.find(ctx, bson.M{"nodeId": bson.M{"$in": nodeIds}})
}

func (s *mongoStore) UpdateTarget(ctx context.Context, id primitive.ObjectID, user string, target string) error {
	share, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	applyTarget(share, user, target)

	update := SharePrototype{}
	update.Target.Set(share.Target)
	update.UserTargets.Set(share.UserTargets)

	filter := SharePrototype{}
	filter.Id.Set(id)

	_, err = s.shares.UpdateOne(ctx, filter, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("While updating target of share %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *mongoStore) find(ctx context.Context, filter any) ([]Share, error) {
	cursor, err := s.shares.Find(ctx, filter, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("While retrieving shares: %w", err)
	}
	defer cursor.Close(ctx)

	shares := make([]Share, 0)
	for cursor.Next(ctx) {
		share := Share{}
		if err := cursor.Decode(&share); err != nil {
			return nil, fmt.Errorf("While decoding share: %w", err)
		}
		shares = append(shares, share)
	}
	if cursor.Err() != nil {
		return nil, fmt.Errorf("While retrieving shares: %w", cursor.Err())
	}
	return shares, nil
}

func queryFilter(shareType ShareType, nodeId *primitive.ObjectID) bson.M {
	proto := SharePrototype{}
	if shareType != ShareTypeAny {
		proto.ShareType.Set(shareType)
	}
	if nodeId != nil {
		proto.NodeId.Set(*nodeId)
	}
	return entities.ToBson(&proto)
}
