package mounts_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/mongodb/mongodbtest"
	"umbasa.net/seraph-mounts/mounts"
)

var natsServer *server.Server
var natsDir string
var natsOnce sync.Once

func TestMain(m *testing.M) {
	code := m.Run()
	if natsServer != nil {
		natsServer.Shutdown()
		os.RemoveAll(natsDir)
	}
	mongodbtest.Shutdown()
	os.Exit(code)
}

func startNats(t *testing.T) *nats.Conn {
	natsOnce.Do(func() {
		var err error
		natsDir, err = os.MkdirTemp("", "mounts-test-js")
		if err != nil {
			panic(err)
		}
		natsServer, err = server.NewServer(&server.Options{
			Port:      server.RANDOM_PORT,
			JetStream: true,
			StoreDir:  natsDir,
		})
		if err != nil {
			panic(err)
		}
		natsServer.Start()
		if !natsServer.ReadyForConnections(5 * time.Second) {
			panic("nats server not ready")
		}
	})

	nc, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func forEachStore(t *testing.T, test func(t *testing.T, store mounts.CacheStore)) {
	t.Run("memory", func(t *testing.T) {
		test(t, mounts.NewMemoryStore())
	})
	t.Run("mongo", func(t *testing.T) {
		v := mongodbtest.Viper(t, "mounts_test")
		db := mongodbtest.Database(t, v)
		db.Drop(context.Background())
		if _, err := mounts.NewMigrations(v); err != nil {
			t.Fatal(err)
		}
		test(t, mounts.NewMongoStore(db))
	})
}

func TestCacheStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, store mounts.CacheStore) {
		ctx := context.Background()
		docs := primitive.NewObjectID()
		pics := primitive.NewObjectID()

		bobDocs := mounts.MountPoint{User: "bob", Target: "/docs", RootId: docs, Provider: "shared", ShareId: primitive.NewObjectID(), Owner: "alice", Permissions: 31}
		bobPics := mounts.MountPoint{User: "bob", Target: "/pics", RootId: pics, Provider: "shared", ShareId: primitive.NewObjectID(), Owner: "alice", Permissions: 1}
		carolDocs := mounts.MountPoint{User: "carol", Target: "/docs", RootId: docs, Provider: "shared", ShareId: primitive.NewObjectID(), Owner: "alice", Permissions: 1}

		for _, m := range []mounts.MountPoint{bobPics, bobDocs, carolDocs} {
			assert.Nil(t, store.Upsert(ctx, &m))
		}
		// idempotent
		assert.Nil(t, store.Upsert(ctx, &bobDocs))

		found, err := store.GetMountsForUser(ctx, "bob")
		assert.Nil(t, err)
		assert.Equal(t, []mounts.MountPoint{bobDocs, bobPics}, mounts.MountPoints(found))
		assert.False(t, found[0].Id.IsZero())

		found, err = store.GetMountsForRootIds(ctx, []primitive.ObjectID{docs})
		assert.Nil(t, err)
		assert.Equal(t, []mounts.MountPoint{bobDocs, carolDocs}, mounts.MountPoints(found))

		found, _ = store.GetMountsForRootIds(ctx, nil)
		assert.Empty(t, found)

		changed := bobDocs
		changed.Permissions = 1
		assert.Nil(t, store.Upsert(ctx, &changed))
		found, _ = store.GetMountsForUser(ctx, "bob")
		assert.Len(t, found, 2)
		assert.Equal(t, changed, found[0].MountPoint)

		assert.Nil(t, store.Remove(ctx, "bob", "/docs"))
		assert.Nil(t, store.Remove(ctx, "bob", "/docs"))
		found, _ = store.GetMountsForUser(ctx, "bob")
		assert.Equal(t, []mounts.MountPoint{bobPics}, mounts.MountPoints(found))
	})
}

func testFlags(t *testing.T, flags mounts.RefreshFlags) {
	ctx := context.Background()

	users, err := flags.Flagged(ctx)
	assert.Nil(t, err)
	assert.Empty(t, users)

	assert.Nil(t, flags.Flag(ctx, "bob", "carol@example.com"))
	assert.Nil(t, flags.Flag(ctx, "bob"))

	users, err = flags.Flagged(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"bob", "carol@example.com"}, users)

	assert.Nil(t, flags.Clear(ctx, "bob"))
	users, _ = flags.Flagged(ctx)
	assert.Equal(t, []string{"carol@example.com"}, users)
}

func TestMemoryFlags(t *testing.T) {
	testFlags(t, mounts.NewMemoryFlags())
}

func TestKeyValueFlags(t *testing.T) {
	nc := startNats(t)
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatal(err)
	}
	flags, err := mounts.NewKeyValueFlags(context.Background(), js, 0)
	if err != nil {
		t.Fatal(err)
	}
	testFlags(t, flags)
}
