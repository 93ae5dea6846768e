package store

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store implementation using environment variables.
//
//	METAFLUX_STORE_DRIVER: memory|sqlite|postgres (default sqlite)
//	METAFLUX_STORE_SQLITE_PATH: database file when driver=sqlite (default metaflux.db)
//	METAFLUX_STORE_POSTGRES_DSN: connection string when driver=postgres
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("METAFLUX_STORE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(os.Getenv("METAFLUX_STORE_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgres(ctx, os.Getenv("METAFLUX_STORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}
