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

package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/messaging"
	"umbasa.net/seraph-mounts/shares/shares"
	"umbasa.net/seraph-mounts/tracing"
)

const GroupCrudTopic = "seraph.groups.crud"

type Params struct {
	fx.In

	Nc      *nats.Conn `optional:"true"`
	Store   Store
	Cache   *CachedDirectory `optional:"true"`
	Bus     events.Bus
	Logger  *logging.Logger
	Tracing *tracing.Tracing
}

type Result struct {
	fx.Out

	GroupsProvider *GroupsProvider
}

// GroupsProvider maintains the members of group-like recipients. Every
// membership change is announced as a share access update for the users
// that joined or left.
type GroupsProvider struct {
	log     *slog.Logger
	tracer  trace.Tracer
	nc      *nats.Conn
	store   Store
	cache   *CachedDirectory
	bus     events.Bus
	crudSub *nats.Subscription
}

func New(p Params) (Result, error) {
	return Result{
		GroupsProvider: &GroupsProvider{
			log:    p.Logger.GetLogger("groups"),
			tracer: p.Tracing.TracerProvider.Tracer("groups"),
			nc:     p.Nc,
			store:  p.Store,
			cache:  p.Cache,
			bus:    p.Bus,
		},
	}, nil
}

func (g *GroupsProvider) Start() error {
	if g.nc == nil {
		g.log.Warn("no NATS connection, not serving " + GroupCrudTopic)
		return nil
	}
	sub, err := messaging.Serve(g.nc, GroupCrudTopic, g.tracer, "handleCrud", g.handleCrud)
	if err != nil {
		return fmt.Errorf("While starting GroupsProvider: %w", err)
	}
	g.crudSub = sub
	return nil
}

func (g *GroupsProvider) Stop() error {
	var err error
	if g.crudSub != nil {
		err = g.crudSub.Unsubscribe()
		g.crudSub = nil
	}
	if err != nil {
		return fmt.Errorf("While stopping GroupsProvider: %w", err)
	}
	return nil
}

// SaveGroup creates or replaces a group.
func (g *GroupsProvider) SaveGroup(ctx context.Context, group *Group) error {
	if !group.Kind.IsGroupLike() {
		return errors.New("invalid group kind: " + string(group.Kind))
	}
	if group.Name == "" {
		return errors.New("name is required")
	}
	if group.Users == nil {
		group.Users = []string{}
	}
	old, err := g.store.Save(ctx, group)
	if err != nil {
		return err
	}
	var oldUsers []string
	if old != nil {
		oldUsers = old.Users
	}
	return g.membershipChanged(ctx, group.Kind, group.Name, MembershipChange(oldUsers, group.Users))
}

func (g *GroupsProvider) DeleteGroup(ctx context.Context, kind shares.ShareType, name string) (*Group, error) {
	old, err := g.store.Delete(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	return old, g.membershipChanged(ctx, kind, name, old.Users)
}

func (g *GroupsProvider) membershipChanged(ctx context.Context, kind shares.ShareType, name string, users []string) error {
	if g.cache != nil {
		g.cache.Invalidate(kind, name, users)
	}
	if len(users) == 0 {
		return nil
	}
	g.log.Debug("group membership changed", "kind", kind, "name", name, "users", users)

	err := events.Publish(ctx, g.bus, shares.UserShareAccessUpdatedTopic, &shares.UserShareAccessUpdatedEvent{
		Users: users,
	})
	if err != nil {
		return fmt.Errorf("While publishing membership change: %w", err)
	}
	return nil
}

func (g *GroupsProvider) handleCrud(ctx context.Context, req *GroupCrudRequest) *GroupCrudResponse {
	switch req.Operation {

	case "READ":
		if req.User != "" {
			names, err := g.store.MembershipsOf(ctx, req.User, req.Kind)
			if err != nil {
				return &GroupCrudResponse{Error: err.Error()}
			}
			return &GroupCrudResponse{Names: names}
		}
		group, err := g.store.Get(ctx, req.Kind, req.Name)
		if errors.Is(err, ErrGroupNotFound) {
			// empty response indicates "not found"
			return &GroupCrudResponse{}
		}
		if err != nil {
			return &GroupCrudResponse{Error: err.Error()}
		}
		return &GroupCrudResponse{Group: []Group{*group}}

	case "CREATE", "UPDATE":
		if req.Group == nil {
			return &GroupCrudResponse{
				Error: "group is required for " + req.Operation + " operation",
			}
		}
		_, err := g.store.Get(ctx, req.Group.Kind, req.Group.Name)
		if req.Operation == "CREATE" && err == nil {
			return &GroupCrudResponse{Error: "group already exists"}
		}
		if req.Operation == "UPDATE" && err != nil {
			return &GroupCrudResponse{Error: err.Error()}
		}
		if err := g.SaveGroup(ctx, req.Group); err != nil {
			g.log.Error("error while saving group", "name", req.Group.Name, "error", err)
			return &GroupCrudResponse{Error: err.Error()}
		}
		return &GroupCrudResponse{Group: []Group{*req.Group}}

	case "DELETE":
		old, err := g.DeleteGroup(ctx, req.Kind, req.Name)
		if err != nil {
			return &GroupCrudResponse{Error: err.Error()}
		}
		return &GroupCrudResponse{Group: []Group{*old}}

	default:
		return &GroupCrudResponse{
			Error: "invalid CRUD operation: " + req.Operation,
		}
	}
}
