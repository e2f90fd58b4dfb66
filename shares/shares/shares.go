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

package shares

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"

	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/messaging"
	"umbasa.net/seraph-mounts/nodes"
	"umbasa.net/seraph-mounts/tracing"
)

const ShareCrudTopic = "seraph.shares.crud"

type Params struct {
	fx.In

	Nc      *nats.Conn `optional:"true"`
	Store   Store
	Nodes   nodes.Store
	Members MemberLister
	Bus     events.Bus
	Logger  *logging.Logger
	Tracing *tracing.Tracing
}

type Result struct {
	fx.Out

	SharesProvider *SharesProvider
}

// SharesProvider performs share CRUD and publishes the share lifecycle
// events. It answers requests on [ShareCrudTopic] while started.
type SharesProvider struct {
	log     *slog.Logger
	tracer  trace.Tracer
	nc      *nats.Conn
	store   Store
	nodes   nodes.Store
	members MemberLister
	bus     events.Bus
	crudSub *nats.Subscription
}

func New(p Params) (Result, error) {
	return Result{
		SharesProvider: &SharesProvider{
			log:     p.Logger.GetLogger("shares"),
			tracer:  p.Tracing.TracerProvider.Tracer("shares"),
			nc:      p.Nc,
			store:   p.Store,
			nodes:   p.Nodes,
			members: p.Members,
			bus:     p.Bus,
		},
	}, nil
}

func (s *SharesProvider) Start() error {
	if s.nc == nil {
		s.log.Warn("no NATS connection, not serving " + ShareCrudTopic)
		return nil
	}
	sub, err := messaging.Serve(s.nc, ShareCrudTopic, s.tracer, "handleCrud", s.handleCrud)
	if err != nil {
		return fmt.Errorf("While starting SharesProvider: %w", err)
	}
	s.crudSub = sub
	return nil
}

func (s *SharesProvider) Stop() error {
	var err error
	if s.crudSub != nil {
		err = s.crudSub.Unsubscribe()
		s.crudSub = nil
	}
	if err != nil {
		return fmt.Errorf("While stopping SharesProvider: %w", err)
	}
	return nil
}

// CreateShare stores a new share and announces it. Missing fields are
// filled in: the initiator defaults to the owner, the node name is taken
// from the node and the status defaults to accepted.
func (s *SharesProvider) CreateShare(ctx context.Context, share *Share) (*Share, error) {
	if share.NodeId.IsZero() {
		return nil, errors.New("nodeId is required")
	}
	if share.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if share.ShareType != ShareTypeLink && share.Recipient == "" {
		return nil, errors.New("recipient is required")
	}
	if share.ShareType != ShareTypeUser && share.ShareType != ShareTypeLink && !share.ShareType.IsGroupLike() {
		return nil, errors.New("invalid shareType: " + string(share.ShareType))
	}
	if share.Permissions < 0 || share.Permissions > PermissionAll {
		return nil, fmt.Errorf("invalid permissions: %d", share.Permissions)
	}
	if share.Initiator == "" {
		share.Initiator = share.Owner
	}
	if share.ShareType == ShareTypeUser && (share.Recipient == share.Owner || share.Recipient == share.Initiator) {
		return nil, errors.New("cannot share with the owner or initiator")
	}
	if share.Status == "" {
		share.Status = StatusAccepted
	}
	if share.NodeName == "" {
		node, err := s.nodes.Get(ctx, share.NodeId)
		if err != nil {
			return nil, fmt.Errorf("While retrieving shared node: %w", err)
		}
		share.NodeName = node.Name()
	}
	if share.Target != "" {
		share.Target = path.Clean("/" + share.Target)
	}

	if err := s.store.Create(ctx, share); err != nil {
		return nil, err
	}

	s.log.Debug("created share", "id", share.Id.Hex(), "type", share.ShareType, "recipient", share.Recipient)

	err := events.Publish(ctx, s.bus, ShareCreatedTopic, &ShareCreatedEvent{Share: *share})
	if err != nil {
		return share, fmt.Errorf("While publishing share creation: %w", err)
	}
	return share, nil
}

// UpdateShare applies update to the share with the given id.
func (s *SharesProvider) UpdateShare(ctx context.Context, id primitive.ObjectID, update *ShareUpdate) (*Share, error) {
	share, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	old := *share

	if update.Permissions != nil {
		if *update.Permissions < 0 || *update.Permissions > PermissionAll {
			return nil, fmt.Errorf("invalid permissions: %d", *update.Permissions)
		}
		share.Permissions = *update.Permissions
	}
	if update.Attributes != nil {
		share.Attributes = *update.Attributes
	}
	if update.Status != nil {
		share.Status = *update.Status
	}
	var targetChanged bool
	if update.Target != nil {
		target := path.Clean("/" + *update.Target)
		if share.ShareType.IsGroupLike() && update.User != "" {
			targetChanged = share.TargetFor(update.User) != target
			applyTarget(share, update.User, target)
		} else {
			targetChanged = share.Target != target
			share.Target = target
		}
	}

	if err := s.store.Update(ctx, share); err != nil {
		return nil, err
	}

	permissionsChanged := old.Permissions != share.Permissions || !old.Attributes.Equal(share.Attributes)
	var errs []error
	if permissionsChanged {
		errs = append(errs, events.Publish(ctx, s.bus, SharePermissionsChangedTopic, &SharePermissionsChangedEvent{
			Share:          *share,
			OldPermissions: old.Permissions,
			OldAttributes:  old.Attributes,
		}))
	}
	if permissionsChanged || old.Status != share.Status {
		errs = append(errs, events.Publish(ctx, s.bus, UserShareAccessUpdatedTopic, AccessUpdateFor(share)))
	} else if targetChanged {
		event := AccessUpdateFor(share)
		if share.ShareType.IsGroupLike() && update.User != "" {
			event = &UserShareAccessUpdatedEvent{Users: []string{update.User}}
		}
		errs = append(errs, events.Publish(ctx, s.bus, UserShareAccessUpdatedTopic, event))
	}
	if err := errors.Join(errs...); err != nil {
		return share, fmt.Errorf("While publishing share update: %w", err)
	}
	return share, nil
}

// DeleteShare removes a share together with the re-shares its recipients
// created of the shared node or anything below it.
func (s *SharesProvider) DeleteShare(ctx context.Context, id primitive.ObjectID) ([]Share, error) {
	share, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	deleted := make([]Share, 0)
	err = s.deleteShare(ctx, share, &deleted)
	return deleted, err
}

func (s *SharesProvider) deleteShare(ctx context.Context, share *Share, deleted *[]Share) error {
	children, err := s.childReshares(ctx, share)
	if err != nil {
		return err
	}

	err = events.Publish(ctx, s.bus, BeforeShareDeletedTopic, &BeforeShareDeletedEvent{Share: *share})
	if err != nil {
		return fmt.Errorf("While publishing share deletion: %w", err)
	}

	err = s.store.Delete(ctx, share.Id)
	if err != nil && !errors.Is(err, ErrShareNotFound) {
		return err
	}
	*deleted = append(*deleted, *share)

	s.log.Debug("deleted share", "id", share.Id.Hex(), "reshares", len(children))

	for i := range children {
		if err := s.deleteShare(ctx, &children[i], deleted); err != nil {
			return err
		}
	}
	return nil
}

func (s *SharesProvider) childReshares(ctx context.Context, share *Share) ([]Share, error) {
	recipients, err := Recipients(ctx, s.members, share)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}
	candidates, err := s.store.GetSharesBy(ctx, share.Owner, ShareTypeAny, nil, true)
	if err != nil {
		return nil, err
	}
	children := make([]Share, 0)
	for _, c := range candidates {
		if c.Id == share.Id || !c.IsReshare() || !slices.Contains(recipients, c.Initiator) {
			continue
		}
		below, err := s.nodes.IsAncestor(ctx, share.NodeId, c.NodeId)
		if errors.Is(err, nodes.ErrNodeNotFound) {
			below = c.NodeId == share.NodeId
		} else if err != nil {
			return nil, err
		}
		if below {
			children = append(children, c)
		}
	}
	return children, nil
}

// ReadShares returns the shares matching filter. At least one of
// initiator and recipients is required.
func (s *SharesProvider) ReadShares(ctx context.Context, filter *ShareFilter) ([]Share, error) {
	var nodeId *primitive.ObjectID
	if filter.NodeId != "" {
		id, err := primitive.ObjectIDFromHex(filter.NodeId)
		if err != nil {
			return nil, fmt.Errorf("invalid nodeId: %w", err)
		}
		nodeId = &id
	}
	switch {
	case filter.Initiator != "":
		return s.store.GetSharesBy(ctx, filter.Initiator, filter.ShareType, nodeId, filter.Reshares)
	case len(filter.Recipients) > 0:
		return s.store.GetSharedWith(ctx, filter.ShareType, filter.Recipients, nodeId)
	default:
		return nil, errors.New("initiator or recipients is required for READ operation")
	}
}

func (s *SharesProvider) handleCrud(ctx context.Context, req *ShareCrudRequest) *ShareCrudResponse {
	switch req.Operation {

	case "READ":
		if req.Id != "" {
			id, err := primitive.ObjectIDFromHex(req.Id)
			if err != nil {
				return errorResponse(err)
			}
			share, err := s.store.Get(ctx, id)
			if errors.Is(err, ErrShareNotFound) {
				// empty response indicates "not found"
				return &ShareCrudResponse{Share: []Share{}}
			}
			if err != nil {
				return errorResponse(err)
			}
			return &ShareCrudResponse{Share: []Share{*share}}
		}
		if req.Filter == nil {
			return &ShareCrudResponse{
				Error: "id or filter is required for READ operation",
			}
		}
		shares, err := s.ReadShares(ctx, req.Filter)
		if err != nil {
			return errorResponse(err)
		}
		return &ShareCrudResponse{Share: shares}

	case "CREATE":
		if req.Share == nil {
			return &ShareCrudResponse{
				Error: "share is required for CREATE operation",
			}
		}
		share, err := s.CreateShare(ctx, req.Share)
		return shareResponse(share, err)

	case "UPDATE":
		if req.Id == "" || req.Update == nil {
			return &ShareCrudResponse{
				Error: "id and update are required for UPDATE operation",
			}
		}
		id, err := primitive.ObjectIDFromHex(req.Id)
		if err != nil {
			return errorResponse(err)
		}
		share, err := s.UpdateShare(ctx, id, req.Update)
		return shareResponse(share, err)

	case "DELETE":
		if req.Id == "" {
			return &ShareCrudResponse{
				Error: "id is required for DELETE operation",
			}
		}
		id, err := primitive.ObjectIDFromHex(req.Id)
		if err != nil {
			return errorResponse(err)
		}
		deleted, err := s.DeleteShare(ctx, id)
		if err != nil {
			s.log.Error("error while deleting share", "id", req.Id, "error", err)
			return &ShareCrudResponse{Error: err.Error(), Share: deleted}
		}
		return &ShareCrudResponse{Share: deleted}

	default:
		return &ShareCrudResponse{
			Error: "invalid CRUD operation: " + req.Operation,
		}
	}
}

func shareResponse(share *Share, err error) *ShareCrudResponse {
	resp := &ShareCrudResponse{Share: []Share{}}
	if share != nil {
		resp.Share = []Share{*share}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func errorResponse(err error) *ShareCrudResponse {
	return &ShareCrudResponse{
		Error: err.Error(),
	}
}
