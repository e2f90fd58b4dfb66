package groups

import (
	"context"
	"slices"
	"time"

	"github.com/akyoto/cache"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/shares/shares"
)

const DefaultCacheTtl = 30 * time.Second

// CachedDirectory memoizes membership lookups of a Directory for ttl.
// Writers call Invalidate after changing a group.
type CachedDirectory struct {
	dir   Directory
	ttl   time.Duration
	cache *cache.Cache
}

func NewCachedDirectory(dir Directory, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultCacheTtl
	}
	return &CachedDirectory{
		dir:   dir,
		ttl:   ttl,
		cache: cache.New(ttl),
	}
}

type DirectoryParams struct {
	fx.In

	Viper *viper.Viper
	Store Store
	Lc    fx.Lifecycle
}

type DirectoryResult struct {
	fx.Out

	Cache     *CachedDirectory
	Directory Directory
	Members   shares.MemberLister
}

// NewDirectory puts a cache with ttl groups.cacheTtl in front of the
// group store.
func NewDirectory(p DirectoryParams) DirectoryResult {
	p.Viper.SetDefault("groups.cacheTtl", DefaultCacheTtl)

	cached := NewCachedDirectory(p.Store, p.Viper.GetDuration("groups.cacheTtl"))
	p.Lc.Append(fx.StopHook(cached.Close))

	return DirectoryResult{
		Cache:     cached,
		Directory: cached,
		Members:   cached,
	}
}

func membershipKey(kind shares.ShareType, user string) string {
	return "m:" + string(kind) + ":" + user
}

func membersKey(kind shares.ShareType, name string) string {
	return "g:" + string(kind) + ":" + name
}

func (c *CachedDirectory) MembershipsOf(ctx context.Context, user string, kind shares.ShareType) ([]string, error) {
	key := membershipKey(kind, user)
	if cached, found := c.cache.Get(key); found {
		return slices.Clone(cached.([]string)), nil
	}
	names, err := c.dir.MembershipsOf(ctx, user, kind)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, slices.Clone(names), c.ttl)
	return names, nil
}

func (c *CachedDirectory) Members(ctx context.Context, kind shares.ShareType, name string) ([]string, error) {
	key := membersKey(kind, name)
	if cached, found := c.cache.Get(key); found {
		return slices.Clone(cached.([]string)), nil
	}
	users, err := c.dir.Members(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, slices.Clone(users), c.ttl)
	return users, nil
}

// Invalidate drops the cached member list of the group and the cached
// memberships of users.
func (c *CachedDirectory) Invalidate(kind shares.ShareType, name string, users []string) {
	c.cache.Delete(membersKey(kind, name))
	for _, u := range users {
		c.cache.Delete(membershipKey(kind, u))
	}
}

func (c *CachedDirectory) Close() {
	c.cache.Close()
}
