package mongodb

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ApplyMigrations runs the JSON command migrations found in the "migrations"
// directory of the embedded filesystem against dbName. Each store keeps its
// own migrations table so stores can share one database.
func ApplyMigrations(migrations embed.FS, uri string, dbName string, table string) error {
	d, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	target := fmt.Sprintf("%s%s?x-migrations-collection=%s", uri, dbName, table)
	mig, err := migrate.NewWithSourceInstance("iofs", d, target)
	if err != nil {
		return err
	}
	defer mig.Close()

	err = mig.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
