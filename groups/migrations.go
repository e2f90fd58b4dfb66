package groups

import (
	"embed"

	"github.com/spf13/viper"
	"umbasa.net/seraph-mounts/mongodb"
)

//go:embed migrations/*.json
var migrations embed.FS

type Migrations struct{}

func NewMigrations(viper *viper.Viper) (Migrations, error) {
	uri := viper.GetString("mongo.url")
	dbName := viper.GetString("mongo.db")

	err := mongodb.ApplyMigrations(migrations, uri, dbName, "groups_migrations")

	return Migrations{}, err
}
