package groups

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"umbasa.net/seraph-mounts/entities"
	"umbasa.net/seraph-mounts/shares/shares"
)

type GroupPrototype struct {
	entities.Prototype

	Id    entities.Definable[primitive.ObjectID] `bson:"_id"`
	Kind  entities.Definable[shares.ShareType]   `bson:"kind" json:"kind"`
	Name  entities.Definable[string]             `bson:"name" json:"name"`
	Users entities.Definable[[]string]           `bson:"users" json:"users"`
}

// Group is a group-like share recipient: a group, circle, room or deck
// board. Kind uses the share type of shares addressed to it.
type Group struct {
	Id    primitive.ObjectID `bson:"_id" json:"id"`
	Kind  shares.ShareType   `bson:"kind" json:"kind"`
	Name  string             `bson:"name" json:"name"`
	Users []string           `bson:"users" json:"users"`
}
