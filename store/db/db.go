// Package db provides the storage driver dispatch.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/store"
	"github.com/hrygo/sidekick/store/db/postgres"
	"github.com/hrygo/sidekick/store/db/sqlite"
)

// NewDBDriver creates a new DB driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver: %s", profile.Driver)
	}
}
