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

package mounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/messaging"
	"umbasa.net/seraph-mounts/tracing"
)

const MountsListTopic = "seraph.mounts.list"

type ProviderParams struct {
	fx.In

	Nc           *nats.Conn `optional:"true"`
	Cache        CacheStore
	Synchronizer *Synchronizer
	Logger       *logging.Logger
	Tracing      *tracing.Tracing
}

type ProviderResult struct {
	fx.Out

	MountsProvider *MountsProvider
}

// MountsProvider answers requests for the cached mounts of a user.
type MountsProvider struct {
	log     *slog.Logger
	tracer  trace.Tracer
	nc      *nats.Conn
	cache   CacheStore
	sync    *Synchronizer
	listSub *nats.Subscription
}

func NewProvider(p ProviderParams) ProviderResult {
	return ProviderResult{
		MountsProvider: &MountsProvider{
			log:    p.Logger.GetLogger("mounts"),
			tracer: p.Tracing.TracerProvider.Tracer("mounts"),
			nc:     p.Nc,
			cache:  p.Cache,
			sync:   p.Synchronizer,
		},
	}
}

func (m *MountsProvider) Start() error {
	if m.nc == nil {
		m.log.Warn("no NATS connection, not serving " + MountsListTopic)
		return nil
	}
	sub, err := messaging.Serve(m.nc, MountsListTopic, m.tracer, "listMounts", m.listMounts)
	if err != nil {
		return fmt.Errorf("While starting MountsProvider: %w", err)
	}
	m.listSub = sub
	return nil
}

func (m *MountsProvider) Stop() error {
	var err error
	if m.listSub != nil {
		err = m.listSub.Unsubscribe()
		m.listSub = nil
	}
	if err != nil {
		return fmt.Errorf("While stopping MountsProvider: %w", err)
	}
	return nil
}

func (m *MountsProvider) listMounts(ctx context.Context, req *MountsRequest) *MountsResponse {
	if req.User == "" {
		return &MountsResponse{Error: "user is required", Mounts: []CachedMount{}}
	}
	if req.Refresh {
		_, err := m.sync.RefreshUser(ctx, req.User)
		if err != nil && !errors.Is(err, ErrRefreshing) {
			m.log.Error("error while refreshing mounts", "user", req.User, "error", err)
			return &MountsResponse{Error: err.Error(), Mounts: []CachedMount{}}
		}
	}
	mounts, err := m.cache.GetMountsForUser(ctx, req.User)
	if err != nil {
		m.log.Error("error while listing mounts", "user", req.User, "error", err)
		return &MountsResponse{Error: err.Error(), Mounts: []CachedMount{}}
	}
	return &MountsResponse{Mounts: mounts}
}
