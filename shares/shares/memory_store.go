package shares

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memoryStore struct {
	mu     sync.RWMutex
	shares map[primitive.ObjectID]Share
}

func NewMemoryStore() Store {
	return &memoryStore{
		shares: make(map[primitive.ObjectID]Share),
	}
}

func (s *memoryStore) Create(ctx context.Context, share *Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	share.Id = primitive.NewObjectID()
	if share.Created.IsZero() {
		share.Created = time.Now()
	}
	s.shares[share.Id] = cloneShare(share)
	return nil
}

func (s *memoryStore) Update(ctx context.Context, share *Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.shares[share.Id]
	if !ok {
		return ErrShareNotFound
	}
	existing.Permissions = share.Permissions
	existing.Attributes = share.Attributes
	existing.Target = share.Target
	existing.UserTargets = slices.Clone(share.UserTargets)
	existing.Status = share.Status
	s.shares[share.Id] = existing
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shares[id]; !ok {
		return ErrShareNotFound
	}
	delete(s.shares, id)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id primitive.ObjectID) (*Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	share, ok := s.shares[id]
	if !ok {
		return nil, ErrShareNotFound
	}
	share = cloneShare(&share)
	return &share, nil
}

func (s *memoryStore) GetSharesBy(ctx context.Context, user string, shareType ShareType, nodeId *primitive.ObjectID, reshares bool) ([]Share, error) {
	return s.find(func(share *Share) bool {
		return matchesSharesBy(share, user, shareType, nodeId, reshares)
	}), nil
}

func (s *memoryStore) GetSharedWith(ctx context.Context, shareType ShareType, recipients []string, nodeId *primitive.ObjectID) ([]Share, error) {
	return s.find(func(share *Share) bool {
		if shareType != ShareTypeAny && share.ShareType != shareType {
			return false
		}
		if nodeId != nil && share.NodeId != *nodeId {
			return false
		}
		return slices.Contains(recipients, share.Recipient)
	}), nil
}

func (s *memoryStore) GetSharesByNodes(ctx context.Context, nodeIds []primitive.ObjectID) ([]Share, error) {
	return s.find(func(share *Share) bool {
		return slices.Contains(nodeIds, share.NodeId)
	}), nil
}

func (s *memoryStore) UpdateTarget(ctx context.Context, id primitive.ObjectID, user string, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[id]
	if !ok {
		return ErrShareNotFound
	}
	applyTarget(&share, user, target)
	s.shares[id] = share
	return nil
}

func (s *memoryStore) find(match func(*Share) bool) []Share {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Share, 0)
	for _, share := range s.shares {
		if match(&share) {
			result = append(result, cloneShare(&share))
		}
	}
	slices.SortFunc(result, func(a, b Share) int {
		return CompareIds(a.Id, b.Id)
	})
	return result
}

func cloneShare(share *Share) Share {
	clone := *share
	clone.UserTargets = slices.Clone(share.UserTargets)
	return clone
}
