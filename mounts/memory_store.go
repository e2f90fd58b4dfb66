package mounts

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mountKey struct {
	user   string
	target string
}

type memoryStore struct {
	mu     sync.RWMutex
	mounts map[mountKey]CachedMount
}

func NewMemoryStore() CacheStore {
	return &memoryStore{
		mounts: make(map[mountKey]CachedMount),
	}
}

func (s *memoryStore) GetMountsForUser(ctx context.Context, user string) ([]CachedMount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]CachedMount, 0)
	for key, mount := range s.mounts {
		if key.user == user {
			res = append(res, mount)
		}
	}
	sortMounts(res)
	return res, nil
}

func (s *memoryStore) GetMountsForRootIds(ctx context.Context, rootIds []primitive.ObjectID) ([]CachedMount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]CachedMount, 0)
	for _, mount := range s.mounts {
		if slices.Contains(rootIds, mount.RootId) {
			res = append(res, mount)
		}
	}
	sortMounts(res)
	return res, nil
}

func (s *memoryStore) Upsert(ctx context.Context, mount *MountPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mountKey{mount.User, mount.Target}
	cached, ok := s.mounts[key]
	if !ok {
		cached.Id = primitive.NewObjectID()
	}
	cached.MountPoint = *mount
	s.mounts[key] = cached
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, user string, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.mounts, mountKey{user, target})
	return nil
}

func sortMounts(mounts []CachedMount) {
	slices.SortFunc(mounts, func(a, b CachedMount) int {
		if c := strings.Compare(a.User, b.User); c != 0 {
			return c
		}
		return strings.Compare(a.Target, b.Target)
	})
}
