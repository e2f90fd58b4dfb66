package groups

import (
	"context"
	"errors"
	"slices"

	"umbasa.net/seraph-mounts/shares/shares"
)

var ErrGroupNotFound = errors.New("group not found")

// Directory answers membership questions for group-like recipients.
type Directory interface {
	// MembershipsOf returns the names of the groups of the given kind user belongs to.
	MembershipsOf(ctx context.Context, user string, kind shares.ShareType) ([]string, error)
	// Members returns the users of a group, or an empty list if it does not exist.
	Members(ctx context.Context, kind shares.ShareType, name string) ([]string, error)
}

type Store interface {
	Directory

	Get(ctx context.Context, kind shares.ShareType, name string) (*Group, error)
	// Save creates or replaces the group with the same kind and name and
	// returns the previous version, or nil.
	Save(ctx context.Context, group *Group) (*Group, error)
	Delete(ctx context.Context, kind shares.ShareType, name string) (*Group, error)
}

// MembershipChange returns the users that joined or left a group.
func MembershipChange(old []string, new []string) []string {
	changed := make([]string, 0)
	for _, u := range new {
		if !slices.Contains(old, u) {
			changed = append(changed, u)
		}
	}
	for _, u := range old {
		if !slices.Contains(new, u) {
			changed = append(changed, u)
		}
	}
	return changed
}
