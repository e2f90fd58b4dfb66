package mounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/mounts"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/shares/shares"
)

// rawShare stores a share without announcing it.
func (f *fixture) rawShare(t *testing.T, node *nodes.Node, recipient string, target string) *shares.Share {
	share := &shares.Share{
		NodeId:      node.Id,
		NodeName:    node.Name(),
		Owner:       node.Owner,
		Initiator:   node.Owner,
		Recipient:   recipient,
		ShareType:   shares.ShareTypeUser,
		Permissions: shares.PermissionAll,
		Status:      shares.StatusAccepted,
		Target:      target,
	}
	if err := f.shares.Create(context.Background(), share); err != nil {
		t.Fatal(err)
	}
	return share
}

func mountAt(user string, target string) mounts.CachedMount {
	return mounts.CachedMount{
		Id: primitive.NewObjectID(),
		MountPoint: mounts.MountPoint{
			User:   user,
			Target: target,
			RootId: primitive.NewObjectID(),
		},
	}
}

func TestVerifyMountPointDefaultTarget(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	share := f.rawShare(t, docs, "bob", "")

	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/docs", target)
	assert.Equal(t, int32(1), f.shares.targetUpdates.Load())

	stored, _ := f.shares.Get(ctx, share.Id)
	assert.Equal(t, "/docs", stored.Target)
}

func TestVerifyMountPointIdempotent(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	f.node(t, "bob", "/docs")
	f.rawShare(t, docs, "bob", "")

	super := f.superShare(t, "bob", docs)
	first, err := f.validator.VerifyMountPoint(ctx, "bob", super, nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/docs (2)", first)
	updates := f.shares.targetUpdates.Load()

	second, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, updates, f.shares.targetUpdates.Load(), "second call persists nothing")

	third, _ := f.validator.VerifyMountPoint(ctx, "bob", super, nil, nil)
	assert.Equal(t, first, third)
	assert.Equal(t, updates, f.shares.targetUpdates.Load())
}

func TestVerifyMountPointCollisionIsMonotonic(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()

	current := []mounts.CachedMount{mountAt("bob", "/x")}
	for n := 2; n <= 5; n++ {
		x := f.node(t, "owner"+string(rune('a'+n)), "/x")
		f.rawShare(t, x, "bob", "")

		target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", x), current, nil)
		assert.Nil(t, err)
		assert.Equal(t, "/x ("+string(rune('0'+n))+")", target)

		mount := mountAt("bob", target)
		mount.RootId = x.Id
		current = append(current, mount)
	}
}

func TestVerifyMountPointClaimedTargets(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	f.rawShare(t, docs, "bob", "")

	claimed := []mounts.MountPoint{{User: "bob", Target: "/docs", RootId: primitive.NewObjectID()}}
	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), nil, claimed)
	assert.Nil(t, err)
	assert.Equal(t, "/docs (2)", target)
}

func TestVerifyMountPointOwnMountIsNoCollision(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	f.rawShare(t, docs, "bob", "/docs")

	current := []mounts.CachedMount{mountAt("bob", "/docs")}
	current[0].RootId = docs.Id

	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), current, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/docs", target)
	assert.Equal(t, int32(0), f.shares.targetUpdates.Load())
}

func TestVerifyMountPointOrphan(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	share := f.rawShare(t, docs, "bob", "/projects/docs")

	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/docs", target)

	stored, _ := f.shares.Get(ctx, share.Id)
	assert.Equal(t, "/docs", stored.Target)
}

func TestVerifyMountPointOrphanIsCollisionChecked(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	f.rawShare(t, docs, "bob", "/projects/docs")

	current := []mounts.CachedMount{mountAt("bob", "/docs")}
	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), current, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/docs (2)", target)
}

func TestVerifyMountPointParentFolder(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	docs := f.node(t, "alice", "/docs")
	f.node(t, "bob", "/projects")
	f.rawShare(t, docs, "bob", "/projects/docs")

	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", docs), nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/projects/docs", target)

	readme := &nodes.Node{Owner: "bob", Path: "/readme", IsDir: false}
	f.nodes.Create(ctx, readme)
	notes := f.node(t, "alice", "/notes")
	f.rawShare(t, notes, "bob", "/readme/notes")

	target, err = f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", notes), nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/notes", target, "a file is no parent folder")
}

func TestVerifyMountPointInsideMount(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	team := f.node(t, "alice", "/team")
	f.node(t, "alice", "/team/plans")
	notes := f.node(t, "carol", "/notes")
	f.rawShare(t, notes, "bob", "/team/notes")
	plans := f.node(t, "dave", "/plans")
	f.rawShare(t, plans, "bob", "/team/plans")

	current := []mounts.CachedMount{mountAt("bob", "/team")}
	current[0].RootId = team.Id

	target, err := f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", notes), current, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/team/notes", target)

	target, err = f.validator.VerifyMountPoint(ctx, "bob", f.superShare(t, "bob", plans), current, nil)
	assert.Nil(t, err)
	assert.Equal(t, "/team/plans (2)", target, "collides with a folder inside the mount")
}

func TestLocator(t *testing.T) {
	f := newFixture(t, nil, mounts.DefaultConfig())
	ctx := context.Background()
	team := f.node(t, "alice", "/team")
	plan := f.node(t, "alice", "/team/plans/q1")
	home := f.node(t, "bob", "/team")

	locator := mounts.NewLocator(f.nodes)
	current := []mounts.CachedMount{mountAt("bob", "/shared/team")}
	current[0].RootId = team.Id

	node, err := locator.Resolve(ctx, "bob", "/shared/team/plans/q1", current)
	assert.Nil(t, err)
	assert.Equal(t, plan.Id, node.Id)

	node, err = locator.Resolve(ctx, "bob", "/team", current)
	assert.Nil(t, err)
	assert.Equal(t, home.Id, node.Id)

	_, err = locator.Resolve(ctx, "bob", "/shared/team/missing", current)
	assert.ErrorIs(t, err, nodes.ErrNodeNotFound)

	isFolder, err := locator.IsFolder(ctx, "bob", "/shared", current)
	assert.Nil(t, err)
	assert.False(t, isFolder)
	isFolder, _ = locator.IsFolder(ctx, "bob", "/", nil)
	assert.True(t, isFolder)
}
