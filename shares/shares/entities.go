package shares

import (
	"bytes"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/entities"
)

type ShareType string

const (
	ShareTypeAny    ShareType = ""
	ShareTypeUser   ShareType = "user"
	ShareTypeGroup  ShareType = "group"
	ShareTypeLink   ShareType = "link"
	ShareTypeCircle ShareType = "circle"
	ShareTypeRoom   ShareType = "room"
	ShareTypeDeck   ShareType = "deck"
)

// GroupKinds lists the group-like recipient kinds in the order their
// shares are consulted when resolving a user's grants.
var GroupKinds = []ShareType{ShareTypeGroup, ShareTypeCircle, ShareTypeRoom, ShareTypeDeck}

func (t ShareType) IsGroupLike() bool {
	switch t {
	case ShareTypeGroup, ShareTypeCircle, ShareTypeRoom, ShareTypeDeck:
		return true
	default:
		return false
	}
}

type Permissions int

const (
	PermissionRead   Permissions = 1
	PermissionUpdate Permissions = 2
	PermissionCreate Permissions = 4
	PermissionDelete Permissions = 8
	PermissionShare  Permissions = 16
	PermissionAll    Permissions = 31
)

func (p Permissions) Has(q Permissions) bool {
	return p&q == q
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// UserTarget overrides the target of a group-like share for one member.
type UserTarget struct {
	User   string `bson:"user" json:"user"`
	Target string `bson:"target" json:"target"`
}

// Share is a single grant of access to a node. Owner is the owner of the
// node's content, Initiator the user who created the grant. They differ
// for re-shares.
type Share struct {
	Id          primitive.ObjectID `bson:"_id" json:"id"`
	NodeId      primitive.ObjectID `bson:"nodeId" json:"nodeId"`
	NodeName    string             `bson:"nodeName" json:"nodeName"`
	Owner       string             `bson:"owner" json:"owner"`
	Initiator   string             `bson:"initiator" json:"initiator"`
	Recipient   string             `bson:"recipient" json:"recipient"`
	ShareType   ShareType          `bson:"shareType" json:"shareType"`
	Permissions Permissions        `bson:"permissions" json:"permissions"`
	Attributes  Attributes         `bson:"attributes" json:"attributes"`
	Target      string             `bson:"target" json:"target"`
	UserTargets []UserTarget       `bson:"userTargets" json:"userTargets"`
	Status      Status             `bson:"status" json:"status"`
	Created     time.Time          `bson:"created" json:"created"`
}

// TargetFor returns the mount target of the share as seen by user.
func (s *Share) TargetFor(user string) string {
	for _, ut := range s.UserTargets {
		if ut.User == user {
			return ut.Target
		}
	}
	return s.Target
}

// IsReshare reports whether the share was created by someone other than
// the content owner.
func (s *Share) IsReshare() bool {
	return s.Initiator != "" && s.Initiator != s.Owner
}

// Before orders shares by creation time, then by id.
func (s *Share) Before(other *Share) bool {
	if !s.Created.Equal(other.Created) {
		return s.Created.Before(other.Created)
	}
	return CompareIds(s.Id, other.Id) < 0
}

func CompareIds(a, b primitive.ObjectID) int {
	return bytes.Compare(a[:], b[:])
}

type SharePrototype struct {
	entities.Prototype

	Id          entities.Definable[primitive.ObjectID] `bson:"_id"`
	NodeId      entities.Definable[primitive.ObjectID] `bson:"nodeId"`
	Owner       entities.Definable[string]             `bson:"owner"`
	Initiator   entities.Definable[string]             `bson:"initiator"`
	Recipient   entities.Definable[string]             `bson:"recipient"`
	ShareType   entities.Definable[ShareType]          `bson:"shareType"`
	Permissions entities.Definable[Permissions]        `bson:"permissions"`
	Attributes  entities.Definable[Attributes]         `bson:"attributes"`
	Target      entities.Definable[string]             `bson:"target"`
	UserTargets entities.Definable[[]UserTarget]       `bson:"userTargets"`
	Status      entities.Definable[Status]             `bson:"status"`
}

// ToUpdatePrototype returns the mutable fields of the share.
func (s *Share) ToUpdatePrototype() *SharePrototype {
	proto := &SharePrototype{}
	proto.Permissions.Set(s.Permissions)
	proto.Attributes.Set(s.Attributes)
	proto.Target.Set(s.Target)
	proto.UserTargets.Set(s.UserTargets)
	proto.Status.Set(s.Status)
	return proto
}
