package shares

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrShareNotFound = errors.New("share not found")

// Store is the durable record of share grants. All listings are ordered
// by share id.
type Store interface {
	// Create assigns a new id, and the creation time if it is unset.
	Create(ctx context.Context, share *Share) error
	// Update writes the mutable fields of share: permissions, attributes,
	// target, user targets and status.
	Update(ctx context.Context, share *Share) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Get(ctx context.Context, id primitive.ObjectID) (*Share, error)

	// GetSharesBy returns the shares created by user. With reshares set it
	// also returns shares of nodes owned by user that others created.
	// A nil nodeId matches all nodes.
	GetSharesBy(ctx context.Context, user string, shareType ShareType, nodeId *primitive.ObjectID, reshares bool) ([]Share, error)

	// GetSharedWith returns the shares of the given type addressed to any
	// of recipients.
	GetSharedWith(ctx context.Context, shareType ShareType, recipients []string, nodeId *primitive.ObjectID) ([]Share, error)

	GetSharesByNodes(ctx context.Context, nodeIds []primitive.ObjectID) ([]Share, error)

	// UpdateTarget sets the target the share is mounted at for user. For
	// group-like shares this is a per-member override.
	UpdateTarget(ctx context.Context, id primitive.ObjectID, user string, target string) error
}

func matchesSharesBy(share *Share, user string, shareType ShareType, nodeId *primitive.ObjectID, reshares bool) bool {
	if shareType != ShareTypeAny && share.ShareType != shareType {
		return false
	}
	if nodeId != nil && share.NodeId != *nodeId {
		return false
	}
	if reshares {
		return share.Initiator == user || share.Owner == user
	}
	return share.Initiator == user
}

// applyTarget sets the target of share for user in place.
func applyTarget(share *Share, user string, target string) {
	if !share.ShareType.IsGroupLike() {
		share.Target = target
		return
	}
	targets := make([]UserTarget, 0, len(share.UserTargets)+1)
	for _, ut := range share.UserTargets {
		if ut.User != user {
			targets = append(targets, ut)
		}
	}
	if target != share.Target {
		targets = append(targets, UserTarget{User: user, Target: target})
	}
	share.UserTargets = targets
}
