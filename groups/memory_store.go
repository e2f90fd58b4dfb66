package groups

import (
	"context"
	"slices"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/shares/shares"
)

type groupKey struct {
	kind shares.ShareType
	name string
}

type memoryStore struct {
	mu     sync.RWMutex
	groups map[groupKey]Group
}

func NewMemoryStore() Store {
	return &memoryStore{
		groups: make(map[groupKey]Group),
	}
}

func (s *memoryStore) MembershipsOf(ctx context.Context, user string, kind shares.ShareType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0)
	for key, group := range s.groups {
		if key.kind == kind && slices.Contains(group.Users, user) {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) Members(ctx context.Context, kind shares.ShareType, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[groupKey{kind, name}]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(group.Users), nil
}

func (s *memoryStore) Get(ctx context.Context, kind shares.ShareType, name string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[groupKey{kind, name}]
	if !ok {
		return nil, ErrGroupNotFound
	}
	group.Users = slices.Clone(group.Users)
	return &group, nil
}

func (s *memoryStore) Save(ctx context.Context, group *Group) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := groupKey{group.Kind, group.Name}
	old, exists := s.groups[key]
	if exists {
		group.Id = old.Id
	} else {
		group.Id = primitive.NewObjectID()
	}
	saved := *group
	saved.Users = slices.Clone(group.Users)
	s.groups[key] = saved

	if !exists {
		return nil, nil
	}
	return &old, nil
}

func (s *memoryStore) Delete(ctx context.Context, kind shares.ShareType, name string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := groupKey{kind, name}
	old, ok := s.groups[key]
	if !ok {
		return nil, ErrGroupNotFound
	}
	delete(s.groups, key)
	return &old, nil
}
