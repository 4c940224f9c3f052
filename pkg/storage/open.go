package storage

import (
	"fmt"

	"github.com/raykavin/zepix/pkg/core"
)

// Open builds the chain store for the configured driver
func Open(settings core.StorageSettings) (*ChainStore, error) {
	var (
		repo core.Repository
		err  error
	)

	switch settings.Driver {
	case "", "buntdb":
		repo, err = FromFile(settings.Path)
	case "sqlite":
		repo, err = FromSQLite(settings.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", settings.Driver)
	}
	if err != nil {
		return nil, err
	}

	store, err := NewChainStore(repo)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return store, nil
}
