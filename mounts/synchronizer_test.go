package mounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"umbasa.net/seraph-mounts/groups"
	"umbasa.net/seraph-mounts/mounts"
	"umbasa.net/seraph-mounts/shares/shares"
)

func TestShareCreatedMountsForRecipient(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "alice", "/docs")

	share := f.share(t, docs, shares.ShareTypeUser, "bob")

	found, err := f.cache.GetMountsForUser(context.Background(), "bob")
	assert.Nil(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, mounts.MountPoint{
		User:        "bob",
		Target:      "/docs",
		RootId:      docs.Id,
		Provider:    "shared",
		ShareId:     share.Id,
		Owner:       "alice",
		Permissions: shares.PermissionAll,
	}, found[0].MountPoint)

	assert.Empty(t, f.targets(t, "alice"), "owner is no recipient")
}

func TestGroupShareTargetsPerMember(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "owner", "/docs")
	f.node(t, "u1", "/docs")
	f.group(t, "g", "u1", "u2")

	f.share(t, docs, shares.ShareTypeGroup, "g")

	assert.Equal(t, []string{"/docs (2)"}, f.targets(t, "u1"))
	assert.Equal(t, []string{"/docs"}, f.targets(t, "u2"))

	assert.Equal(t, "/docs (2)", f.superShare(t, "u1", docs).Target)
	assert.Equal(t, "/docs", f.superShare(t, "u2", docs).Target)
}

func TestShareDeletedUnmounts(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "alice", "/docs")
	share := f.share(t, docs, shares.ShareTypeUser, "bob")
	assert.Equal(t, []string{"/docs"}, f.targets(t, "bob"))

	_, err := f.provider.DeleteShare(context.Background(), share.Id)
	assert.Nil(t, err)

	assert.Empty(t, f.targets(t, "bob"))
}

func TestShareDeletedKeepsOtherGrants(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "alice", "/docs")
	f.group(t, "team", "bob")
	direct := f.share(t, docs, shares.ShareTypeUser, "bob")
	f.share(t, docs, shares.ShareTypeGroup, "team")
	assert.Equal(t, []string{"/docs"}, f.targets(t, "bob"))

	_, err := f.provider.DeleteShare(context.Background(), direct.Id)
	assert.Nil(t, err)

	found, _ := f.cache.GetMountsForUser(context.Background(), "bob")
	assert.Len(t, found, 1)
	assert.Equal(t, "/docs", found[0].Target)
	assert.NotEqual(t, direct.Id, found[0].ShareId)
}

func TestUnshareRemovesReshareMounts(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "alice", "/docs")
	sub := f.node(t, "alice", "/docs/sub")
	toBob := f.share(t, docs, shares.ShareTypeUser, "bob")
	f.reshare(t, sub, "bob", "carol")
	assert.Equal(t, []string{"/sub"}, f.targets(t, "carol"))

	// the cache is cleaned up even before the re-share itself is deleted
	err := f.synchronizer.OnBeforeShareDeleted(context.Background(), toBob)
	assert.Nil(t, err)
	assert.Empty(t, f.targets(t, "bob"))
	assert.Empty(t, f.targets(t, "carol"))

	deleted, err := f.provider.DeleteShare(context.Background(), toBob.Id)
	assert.Nil(t, err)
	assert.Len(t, deleted, 2)
	assert.Empty(t, f.targets(t, "carol"))
}

func TestMembershipChangeRefreshesMounts(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "alice", "/docs")
	f.group(t, "team", "bob")
	f.share(t, docs, shares.ShareTypeGroup, "team")
	assert.Equal(t, []string{"/docs"}, f.targets(t, "bob"))

	f.group(t, "team", "carol")

	assert.Empty(t, f.targets(t, "bob"))
	assert.Equal(t, []string{"/docs"}, f.targets(t, "carol"))
}

func TestPermissionChangeRefreshesMounts(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	docs := f.node(t, "alice", "/docs")
	share := f.share(t, docs, shares.ShareTypeUser, "bob")

	perms := shares.PermissionRead
	_, err := f.provider.UpdateShare(context.Background(), share.Id, &shares.ShareUpdate{Permissions: &perms})
	assert.Nil(t, err)

	found, _ := f.cache.GetMountsForUser(context.Background(), "bob")
	assert.Len(t, found, 1)
	assert.Equal(t, shares.PermissionRead, found[0].Permissions)

	zero := shares.Permissions(0)
	_, err = f.provider.UpdateShare(context.Background(), share.Id, &shares.ShareUpdate{Permissions: &zero})
	assert.Nil(t, err)
	assert.Empty(t, f.targets(t, "bob"), "opted out")
}

func TestRefreshUser(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	pics := f.node(t, "alice", "/pics")
	f.rawShare(t, docs, "bob", "")
	f.rawShare(t, pics, "bob", "")
	stale := mountAt("bob", "/gone")
	f.cache.Upsert(ctx, &stale.MountPoint)

	delta, err := f.synchronizer.RefreshUser(ctx, "bob")
	assert.Nil(t, err)
	assert.Len(t, delta.Added, 2)
	assert.Len(t, delta.Removed, 1)
	assert.Equal(t, "/gone", delta.Removed[0].Target)
	assert.Equal(t, []string{"/docs", "/pics"}, f.targets(t, "bob"))
	assert.Equal(t, mounts.Idle, f.synchronizer.State("bob"))

	delta, err = f.synchronizer.RefreshUser(ctx, "bob")
	assert.Nil(t, err)
	assert.True(t, delta.Empty())
}

func TestRefreshUserMovesTargetOfSameNode(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	f.rawShare(t, docs, "bob", "/projects/docs")
	old := mountAt("bob", "/projects/docs")
	old.RootId = docs.Id
	f.cache.Upsert(ctx, &old.MountPoint)

	delta, err := f.synchronizer.RefreshUser(ctx, "bob")
	assert.Nil(t, err)
	assert.Len(t, delta.Removed, 1)
	assert.Len(t, delta.Added, 1)
	assert.Equal(t, []string{"/docs"}, f.targets(t, "bob"))
}

func TestCutoffDefersUsers(t *testing.T) {
	cfg := mounts.DefaultConfig()
	cfg.Refresh.CutoffUsers = 2
	f := newFixture(t, nil, cfg)
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	_, err := f.groups.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "all", Users: []string{"u1", "u2", "u3"}})
	assert.Nil(t, err)

	f.share(t, docs, shares.ShareTypeGroup, "all")

	for _, u := range []string{"u1", "u2", "u3"} {
		assert.Empty(t, f.targets(t, u))
	}
	flagged, _ := f.flags.Flagged(ctx)
	assert.Equal(t, []string{"u1", "u2", "u3"}, flagged)

	n, err := f.job.RunNow(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
	for _, u := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, []string{"/docs"}, f.targets(t, u))
	}
	flagged, _ = f.flags.Flagged(ctx)
	assert.Empty(t, flagged)
}

func TestTimeBudgetDefersRemainingUsers(t *testing.T) {
	cfg := mounts.DefaultConfig()
	cfg.Refresh.TimeBudget = 1
	f := newFixture(t, nil, cfg)
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	_, err := f.groups.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "team", Users: []string{"u1", "u2"}})
	assert.Nil(t, err)

	f.share(t, docs, shares.ShareTypeGroup, "team")

	// every user is either mounted or flagged
	mounted := len(f.targets(t, "u1")) + len(f.targets(t, "u2"))
	flagged, _ := f.flags.Flagged(ctx)
	assert.Equal(t, 2, mounted+len(flagged))
	assert.NotEmpty(t, flagged)
}
