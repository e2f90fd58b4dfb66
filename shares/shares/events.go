package shares

import (
	"context"
	"fmt"
	"slices"

	"umbasa.net/seraph-mounts/events"
)

type ShareCreatedEvent struct {
	Share Share `json:"share"`
}

// BeforeShareDeletedEvent is published while the share record still exists.
type BeforeShareDeletedEvent struct {
	Share Share `json:"share"`
}

type SharePermissionsChangedEvent struct {
	Share          Share       `json:"share"`
	OldPermissions Permissions `json:"oldPermissions"`
	OldAttributes  Attributes  `json:"oldAttributes"`
}

type Recipient struct {
	ShareType ShareType `json:"shareType"`
	Name      string    `json:"name"`
}

// UserShareAccessUpdatedEvent asks for a full recomputation of the mounts
// of Users and of all members of Groups.
type UserShareAccessUpdatedEvent struct {
	Users  []string    `json:"users"`
	Groups []Recipient `json:"groups"`
}

var ShareCreatedTopic = events.NewTopic[ShareCreatedEvent]("seraph.shares.created")
var BeforeShareDeletedTopic = events.NewTopic[BeforeShareDeletedEvent]("seraph.shares.beforeDeleted")
var SharePermissionsChangedTopic = events.NewTopic[SharePermissionsChangedEvent]("seraph.shares.permissionsChanged")
var UserShareAccessUpdatedTopic = events.NewTopic[UserShareAccessUpdatedEvent]("seraph.shares.accessUpdated")

// MemberLister enumerates the members of a group-like recipient.
type MemberLister interface {
	Members(ctx context.Context, kind ShareType, name string) ([]string, error)
}

// Recipients returns the users that receive share. The owner and the
// initiator are never recipients of their own grant.
func Recipients(ctx context.Context, members MemberLister, share *Share) ([]string, error) {
	var users []string
	switch {
	case share.ShareType == ShareTypeUser:
		users = []string{share.Recipient}
	case share.ShareType.IsGroupLike():
		m, err := members.Members(ctx, share.ShareType, share.Recipient)
		if err != nil {
			return nil, fmt.Errorf("While listing members of %s %s: %w", share.ShareType, share.Recipient, err)
		}
		users = slices.Clone(m)
	default:
		return []string{}, nil
	}
	return slices.DeleteFunc(users, func(user string) bool {
		return user == "" || user == share.Owner || user == share.Initiator
	}), nil
}

// AccessUpdateFor returns the event that refreshes all recipients of share.
func AccessUpdateFor(share *Share) *UserShareAccessUpdatedEvent {
	event := &UserShareAccessUpdatedEvent{}
	if share.ShareType.IsGroupLike() {
		event.Groups = []Recipient{{share.ShareType, share.Recipient}}
	} else if share.ShareType == ShareTypeUser {
		event.Users = []string{share.Recipient}
	}
	return event
}
