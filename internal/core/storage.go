package core

import (
	"fmt"
	"os"

	"github.com/MetaCell/sckan-composer-sub001/internal/infra/persistence/memory"
	"github.com/MetaCell/sckan-composer-sub001/internal/infra/persistence/postgres"
	"github.com/MetaCell/sckan-composer-sub001/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	COMPOSER_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	COMPOSER_SQLITE_PATH: path to sqlite file (default ./composer.db)
//	COMPOSER_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("COMPOSER_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("COMPOSER_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("COMPOSER_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// NewInMemoryService constructs a service over a fresh in-memory store. Used
// by tests and ephemeral tooling.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}
