package groups_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/groups"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/mongodb/mongodbtest"
	"umbasa.net/seraph-mounts/shares/shares"
	"umbasa.net/seraph-mounts/tracing"
)

func TestMain(m *testing.M) {
	code := m.Run()
	mongodbtest.Shutdown()
	os.Exit(code)
}

func forEachStore(t *testing.T, test func(t *testing.T, store groups.Store)) {
	t.Run("memory", func(t *testing.T) {
		test(t, groups.NewMemoryStore())
	})
	t.Run("mongo", func(t *testing.T) {
		v := mongodbtest.Viper(t, "groups_test")
		db := mongodbtest.Database(t, v)
		db.Drop(context.Background())
		if _, err := groups.NewMigrations(v); err != nil {
			t.Fatal(err)
		}
		test(t, groups.NewMongoStore(db))
	})
}

func TestStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, store groups.Store) {
		ctx := context.Background()

		old, err := store.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "team", Users: []string{"bob", "carol"}})
		assert.Nil(t, err)
		assert.Nil(t, old)
		store.Save(ctx, &groups.Group{Kind: shares.ShareTypeCircle, Name: "team", Users: []string{"dave"}})
		store.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "admins", Users: []string{"bob"}})

		members, err := store.Members(ctx, shares.ShareTypeGroup, "team")
		assert.Nil(t, err)
		assert.ElementsMatch(t, []string{"bob", "carol"}, members)

		members, err = store.Members(ctx, shares.ShareTypeGroup, "nobody")
		assert.Nil(t, err)
		assert.Empty(t, members)

		names, err := store.MembershipsOf(ctx, "bob", shares.ShareTypeGroup)
		assert.Nil(t, err)
		assert.Equal(t, []string{"admins", "team"}, names)

		names, _ = store.MembershipsOf(ctx, "dave", shares.ShareTypeGroup)
		assert.Empty(t, names)

		old, err = store.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "team", Users: []string{"carol"}})
		assert.Nil(t, err)
		assert.ElementsMatch(t, []string{"bob", "carol"}, old.Users)

		deleted, err := store.Delete(ctx, shares.ShareTypeGroup, "team")
		assert.Nil(t, err)
		assert.Equal(t, []string{"carol"}, deleted.Users)

		_, err = store.Get(ctx, shares.ShareTypeGroup, "team")
		assert.ErrorIs(t, err, groups.ErrGroupNotFound)
		_, err = store.Delete(ctx, shares.ShareTypeGroup, "team")
		assert.ErrorIs(t, err, groups.ErrGroupNotFound)
	})
}

func TestMembershipChange(t *testing.T) {
	assert.ElementsMatch(t, []string{"dave", "bob"}, groups.MembershipChange([]string{"bob", "carol"}, []string{"carol", "dave"}))
	assert.Empty(t, groups.MembershipChange([]string{"bob"}, []string{"bob"}))
	assert.Equal(t, []string{"bob"}, groups.MembershipChange(nil, []string{"bob"}))
}

func TestCachedDirectory(t *testing.T) {
	ctx := context.Background()
	store := groups.NewMemoryStore()
	store.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "team", Users: []string{"bob"}})

	cached := groups.NewCachedDirectory(store, time.Hour)
	defer cached.Close()

	members, _ := cached.Members(ctx, shares.ShareTypeGroup, "team")
	assert.Equal(t, []string{"bob"}, members)

	store.Save(ctx, &groups.Group{Kind: shares.ShareTypeGroup, Name: "team", Users: []string{"bob", "carol"}})

	members, _ = cached.Members(ctx, shares.ShareTypeGroup, "team")
	assert.Equal(t, []string{"bob"}, members, "served from cache")

	cached.Invalidate(shares.ShareTypeGroup, "team", []string{"carol"})

	members, _ = cached.Members(ctx, shares.ShareTypeGroup, "team")
	assert.Equal(t, []string{"bob", "carol"}, members)
	names, _ := cached.MembershipsOf(ctx, "carol", shares.ShareTypeGroup)
	assert.Equal(t, []string{"team"}, names)
}

func TestSaveGroupPublishesAccessUpdate(t *testing.T) {
	ctx := context.Background()
	store := groups.NewMemoryStore()
	cached := groups.NewCachedDirectory(store, time.Hour)
	defer cached.Close()
	bus := events.NewLocalBus()

	updates := make([]shares.UserShareAccessUpdatedEvent, 0)
	events.Subscribe(bus, shares.UserShareAccessUpdatedTopic, func(ctx context.Context, ev *shares.UserShareAccessUpdatedEvent) error {
		updates = append(updates, *ev)
		return nil
	})

	res, _ := groups.New(groups.Params{
		Store:   store,
		Cache:   cached,
		Bus:     bus,
		Logger:  logging.New(logging.Params{}),
		Tracing: tracing.NewNoopTracing(),
	})
	provider := res.GroupsProvider
	assert.Nil(t, provider.Start())
	defer provider.Stop()

	err := provider.SaveGroup(ctx, &groups.Group{Kind: shares.ShareTypeRoom, Name: "chat", Users: []string{"bob", "carol"}})
	assert.Nil(t, err)
	members, _ := cached.Members(ctx, shares.ShareTypeRoom, "chat")
	assert.Equal(t, []string{"bob", "carol"}, members)

	err = provider.SaveGroup(ctx, &groups.Group{Kind: shares.ShareTypeRoom, Name: "chat", Users: []string{"carol", "dave"}})
	assert.Nil(t, err)
	members, _ = cached.Members(ctx, shares.ShareTypeRoom, "chat")
	assert.Equal(t, []string{"carol", "dave"}, members)

	// no change, no event
	err = provider.SaveGroup(ctx, &groups.Group{Kind: shares.ShareTypeRoom, Name: "chat", Users: []string{"carol", "dave"}})
	assert.Nil(t, err)

	_, err = provider.DeleteGroup(ctx, shares.ShareTypeRoom, "chat")
	assert.Nil(t, err)

	assert.Len(t, updates, 3)
	assert.ElementsMatch(t, []string{"bob", "carol"}, updates[0].Users)
	assert.ElementsMatch(t, []string{"dave", "bob"}, updates[1].Users)
	assert.ElementsMatch(t, []string{"carol", "dave"}, updates[2].Users)

	err = provider.SaveGroup(ctx, &groups.Group{Kind: shares.ShareTypeUser, Name: "bob"})
	assert.NotNil(t, err)
}
