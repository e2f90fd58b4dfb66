package mounts

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/entities"
	"umbasa.net/seraph-mounts/shares/shares"
)

// MountPoint places a shared node in the namespace of a user. Target is
// unique per user.
type MountPoint struct {
	User   string             `bson:"user" json:"user"`
	Target string             `bson:"target" json:"target"`
	RootId primitive.ObjectID `bson:"rootId" json:"rootId"`
	// tag of the storage provider that serves the mount
	Provider string `bson:"provider" json:"provider"`
	// representative share of the super share the mount was created for
	ShareId     primitive.ObjectID `bson:"shareId" json:"shareId"`
	Owner       string             `bson:"owner" json:"owner"`
	Permissions shares.Permissions `bson:"permissions" json:"permissions"`
}

// CachedMount is a persisted MountPoint.
type CachedMount struct {
	Id         primitive.ObjectID `bson:"_id" json:"id"`
	MountPoint `bson:",inline"`
}

type MountPrototype struct {
	entities.Prototype

	User        entities.Definable[string]             `bson:"user"`
	Target      entities.Definable[string]             `bson:"target"`
	RootId      entities.Definable[primitive.ObjectID] `bson:"rootId"`
	Provider    entities.Definable[string]             `bson:"provider"`
	ShareId     entities.Definable[primitive.ObjectID] `bson:"shareId"`
	Owner       entities.Definable[string]             `bson:"owner"`
	Permissions entities.Definable[shares.Permissions] `bson:"permissions"`
}

func (m *MountPoint) toPrototype() *MountPrototype {
	proto := &MountPrototype{}
	proto.User.Set(m.User)
	proto.Target.Set(m.Target)
	proto.RootId.Set(m.RootId)
	proto.Provider.Set(m.Provider)
	proto.ShareId.Set(m.ShareId)
	proto.Owner.Set(m.Owner)
	proto.Permissions.Set(m.Permissions)
	return proto
}

// MountPoints returns the mount points of mounts.
func MountPoints(mounts []CachedMount) []MountPoint {
	res := make([]MountPoint, len(mounts))
	for i := range mounts {
		res[i] = mounts[i].MountPoint
	}
	return res
}
