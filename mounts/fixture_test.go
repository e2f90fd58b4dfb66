package mounts_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/groups"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/metrics"
	"umbasa.net/seraph-mounts/mounts"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/resolver"
	"umbasa.net/seraph-mounts/shares/shares"
	"umbasa.net/seraph-mounts/tracing"
)

// countingStore counts target updates. Lookups of shared nodes fail
// while failLookups is set.
type countingStore struct {
	shares.Store
	targetUpdates atomic.Int32
	failLookups   atomic.Bool
}

func (s *countingStore) GetSharedWith(ctx context.Context, kind shares.ShareType, recipients []string, nodeId *primitive.ObjectID) ([]shares.Share, error) {
	if s.failLookups.Load() {
		return nil, errors.New("lookup failed")
	}
	return s.Store.GetSharedWith(ctx, kind, recipients, nodeId)
}

func (s *countingStore) UpdateTarget(ctx context.Context, id primitive.ObjectID, user string, target string) error {
	s.targetUpdates.Add(1)
	return s.Store.UpdateTarget(ctx, id, user, target)
}

type fixture struct {
	bus          events.Bus
	nodes        nodes.Store
	shares       *countingStore
	groups       groups.Store
	cache        mounts.CacheStore
	flags        mounts.RefreshFlags
	resolver     *resolver.Resolver
	validator    *mounts.TargetValidator
	synchronizer *mounts.Synchronizer
	provider     *shares.SharesProvider
	groupsProv   *groups.GroupsProvider
	job          *mounts.RefreshJob
	mounts       *mounts.MountsProvider
}

func newFixture(t *testing.T, nc *nats.Conn, cfg mounts.Config) *fixture {
	logger := logging.New(logging.Params{})
	noop := tracing.NewNoopTracing()
	m := metrics.New()

	f := &fixture{
		bus:    events.NewLocalBus(),
		nodes:  nodes.NewMemoryStore(),
		shares: &countingStore{Store: shares.NewMemoryStore()},
		groups: groups.NewMemoryStore(),
		cache:  mounts.NewMemoryStore(),
		flags:  mounts.NewMemoryFlags(),
	}

	f.resolver = resolver.New(resolver.Params{
		Store:     f.shares,
		Directory: f.groups,
		Logger:    logger,
	}).Resolver

	f.validator = mounts.NewValidator(mounts.ValidatorParams{
		Shares:  f.shares,
		Nodes:   f.nodes,
		Logger:  logger,
		Metrics: m,
	}).Validator

	f.synchronizer = mounts.NewSynchronizer(mounts.SynchronizerParams{
		Config:    cfg,
		Resolver:  f.resolver,
		Validator: f.validator,
		Cache:     f.cache,
		Shares:    f.shares,
		Nodes:     f.nodes,
		Members:   f.groups,
		Flags:     f.flags,
		Bus:       f.bus,
		Logger:    logger,
		Metrics:   m,
	}).Synchronizer
	if err := f.synchronizer.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.synchronizer.Stop() })

	res, err := shares.New(shares.Params{
		Store:   f.shares,
		Nodes:   f.nodes,
		Members: f.groups,
		Bus:     f.bus,
		Logger:  logger,
		Tracing: noop,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.provider = res.SharesProvider

	groupsRes, err := groups.New(groups.Params{
		Store:   f.groups,
		Bus:     f.bus,
		Logger:  logger,
		Tracing: noop,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.groupsProv = groupsRes.GroupsProvider

	f.job = mounts.NewRefreshJob(mounts.RefreshJobParams{
		Config:       cfg,
		Synchronizer: f.synchronizer,
		Flags:        f.flags,
		Logger:       logger,
	}).RefreshJob

	f.mounts = mounts.NewProvider(mounts.ProviderParams{
		Nc:           nc,
		Cache:        f.cache,
		Synchronizer: f.synchronizer,
		Logger:       logger,
		Tracing:      noop,
	}).MountsProvider

	return f
}

func (f *fixture) node(t *testing.T, owner string, p string) *nodes.Node {
	node := &nodes.Node{Owner: owner, Path: p, IsDir: true}
	if err := f.nodes.Create(context.Background(), node); err != nil {
		t.Fatal(err)
	}
	return node
}

func (f *fixture) share(t *testing.T, node *nodes.Node, typ shares.ShareType, recipient string) *shares.Share {
	share, err := f.provider.CreateShare(context.Background(), &shares.Share{
		NodeId:      node.Id,
		Owner:       node.Owner,
		Recipient:   recipient,
		ShareType:   typ,
		Permissions: shares.PermissionAll,
	})
	if err != nil {
		t.Fatal(err)
	}
	return share
}

func (f *fixture) reshare(t *testing.T, node *nodes.Node, initiator string, recipient string) *shares.Share {
	share, err := f.provider.CreateShare(context.Background(), &shares.Share{
		NodeId:      node.Id,
		Owner:       node.Owner,
		Initiator:   initiator,
		Recipient:   recipient,
		ShareType:   shares.ShareTypeUser,
		Permissions: shares.PermissionRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	return share
}

func (f *fixture) group(t *testing.T, name string, users ...string) {
	err := f.groupsProv.SaveGroup(context.Background(), &groups.Group{Kind: shares.ShareTypeGroup, Name: name, Users: users})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) targets(t *testing.T, user string) []string {
	found, err := f.cache.GetMountsForUser(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	targets := make([]string, len(found))
	for i, m := range found {
		targets[i] = m.Target
	}
	return targets
}

func (f *fixture) superShare(t *testing.T, user string, node *nodes.Node) *resolver.SuperShare {
	super, err := f.resolver.ResolveNode(context.Background(), user, node.Id)
	if err != nil {
		t.Fatal(err)
	}
	if super == nil {
		t.Fatalf("no super share of %s for %s", user, node.Path)
	}
	return super
}
