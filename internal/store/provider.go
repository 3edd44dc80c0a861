package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/config"
	"github.com/sirupsen/logrus"
)

var ErrStoreNotFound = errors.New("store not found")

// Provided is an opened store together with the function releasing it.
type Provided struct {
	Store
	Close func() error
}

// Open builds the store selected by cfg.Store and migrates it.
func Open(ctx context.Context, cfg *config.Config) (*Provided, error) {
	codec, err := compress.New(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var p *Provided
	switch cfg.Store {
	case "gorm", "":
		db := config.GetDb(cfg)
		p = &Provided{
			Store: NewGormStore(db, codec),
			Close: func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}
	case "badger":
		s, err := NewBadgerStore(cfg.BadgerPath, codec)
		if err != nil {
			return nil, err
		}
		p = &Provided{Store: s, Close: s.Close}
	case "firestore":
		client, err := NewFirestoreClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, err
		}
		s := NewFirestoreStore(client, codec)
		p = &Provided{Store: s, Close: s.Close}
	default:
		return nil, fmt.Errorf("%w: %q", ErrStoreNotFound, cfg.Store)
	}

	if err := p.Migrate(); err != nil {
		_ = p.Close()
		return nil, err
	}

	logrus.Infof("using %s store with %s compression", cfg.Store, codec.Name())

	return p, nil
}
