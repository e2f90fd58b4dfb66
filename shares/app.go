// Copyright © 2024 Benjamin Schmitz

// This file is part of Seraph <https://github.com/Vortex375/seraph>.

// Seraph is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License
// as published by the Free Software Foundation,
// either version 3 of the License, or (at your option)
// any later version.

// Seraph is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with Seraph.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/config"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/groups"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/messaging"
	"umbasa.net/seraph-mounts/metrics"
	"umbasa.net/seraph-mounts/mongodb"
	"umbasa.net/seraph-mounts/mounts"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/propagation"
	"umbasa.net/seraph-mounts/resolver"
	"umbasa.net/seraph-mounts/shares/shares"
	"umbasa.net/seraph-mounts/tracing"
)

type StoresParams struct {
	fx.In

	Viper  *viper.Viper
	Client *mongo.Client
}

type StoresResult struct {
	fx.Out

	Nodes  nodes.Store
	Shares shares.Store
	Groups groups.Store
	Mounts mounts.CacheStore
}

// NewStores selects the backend configured by storage.type. The Mongo
// backend migrates every collection before use.
func NewStores(p StoresParams) (StoresResult, error) {
	p.Viper.SetDefault("storage.type", "mongo")

	switch storage := p.Viper.GetString("storage.type"); storage {
	case "memory":
		return StoresResult{
			Nodes:  nodes.NewMemoryStore(),
			Shares: shares.NewMemoryStore(),
			Groups: groups.NewMemoryStore(),
			Mounts: mounts.NewMemoryStore(),
		}, nil

	case "mongo":
		_, nodesErr := nodes.NewMigrations(p.Viper)
		_, sharesErr := shares.NewMigrations(p.Viper)
		_, groupsErr := groups.NewMigrations(p.Viper)
		_, mountsErr := mounts.NewMigrations(p.Viper)
		if err := errors.Join(nodesErr, sharesErr, groupsErr, mountsErr); err != nil {
			return StoresResult{}, fmt.Errorf("While applying migrations: %w", err)
		}

		db := p.Client.Database(p.Viper.GetString("mongo.db"))
		return StoresResult{
			Nodes:  nodes.NewMongoStore(db),
			Shares: shares.NewMongoStore(db),
			Groups: groups.NewMongoStore(db),
			Mounts: mounts.NewMongoStore(db),
		}, nil

	default:
		return StoresResult{}, errors.New("invalid storage.type: " + storage)
	}
}

type ServicesParams struct {
	fx.In

	Engine       *propagation.Engine
	Synchronizer *mounts.Synchronizer
	Shares       *shares.SharesProvider
	Groups       *groups.GroupsProvider
	Mounts       *mounts.MountsProvider
	Job          *mounts.RefreshJob
	// registers its own hooks
	Metrics *metrics.Server
	Lc      fx.Lifecycle
}

// startServices registers the lifecycle of every service. The propagation
// engine subscribes before the synchronizer so that it still sees the
// mounts of a share that is about to be deleted.
func startServices(p ServicesParams) {
	p.Lc.Append(fx.StartStopHook(p.Engine.Start, p.Engine.Stop))
	p.Lc.Append(fx.StartStopHook(p.Synchronizer.Start, p.Synchronizer.Stop))
	p.Lc.Append(fx.StartStopHook(p.Shares.Start, p.Shares.Stop))
	p.Lc.Append(fx.StartStopHook(p.Groups.Start, p.Groups.Stop))
	p.Lc.Append(fx.StartStopHook(p.Mounts.Start, p.Mounts.Stop))
	p.Lc.Append(fx.StartStopHook(p.Job.Start, p.Job.Stop))
}

func options() fx.Option {
	return fx.Options(
		logging.Module,
		messaging.Module,
		config.Module,
		mongodb.Module,
		tracing.Module,
		events.Module,
		metrics.Module,
		logging.FxLogger(),
		fx.Decorate(func(viper *viper.Viper) *viper.Viper {
			viper.SetDefault("tracing.serviceName", "shares")
			viper.SetDefault("mongo.db", "seraph-shares")
			return viper
		}),
		fx.Provide(
			NewStores,
			groups.NewDirectory,
			groups.New,
			shares.New,
			resolver.New,
			mounts.NewConfig,
			mounts.NewRefreshFlags,
			mounts.NewValidator,
			mounts.NewSynchronizer,
			mounts.NewRefreshJob,
			mounts.NewProvider,
			propagation.New,
		),
		fx.Invoke(startServices),
	)
}
