package askdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/query"
	duckdbengine "github.com/askdb/askdb/internal/query/duckdb"
	postgresengine "github.com/askdb/askdb/internal/query/postgres"
	sqliteengine "github.com/askdb/askdb/internal/query/sqlite"
	"github.com/askdb/askdb/internal/storage"
	"github.com/askdb/askdb/internal/storage/s3"
)

// openEngine opens the database target read-only. An explicit driver from
// configuration wins; otherwise the driver is inferred from the target.
// s3:// targets are fetched into a temporary file first.
func openEngine(ctx context.Context, target string, cfg config.Config) (query.Engine, error) {
	driver := cfg.Query.Driver
	if driver == "" {
		driver = inferDriver(target)
	}
	if driver == config.DriverPostgres {
		return postgresengine.Open(ctx, target, cfg.Query.RowLimit)
	}

	local := target
	fetched := false
	if storage.IsS3URL(target) {
		path, err := fetchRemoteDatabase(ctx, target, cfg)
		if err != nil {
			return nil, err
		}
		local = path
		fetched = true
	}

	var engine query.Engine
	var err error
	switch driver {
	case config.DriverDuckDB:
		engine, err = duckdbengine.Open(ctx, local, cfg.Query.RowLimit)
	default:
		engine, err = sqliteengine.Open(ctx, local, cfg.Query.RowLimit)
	}
	if err != nil {
		if fetched {
			_ = os.Remove(local)
		}
		return nil, err
	}
	if fetched {
		return &fetchedEngine{Engine: engine, path: local}, nil
	}
	return engine, nil
}

// fetchedEngine removes the temporary snapshot file once the session closes.
type fetchedEngine struct {
	query.Engine
	path string
}

func (e *fetchedEngine) Close() error {
	err := e.Engine.Close()
	if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

func inferDriver(target string) string {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		return config.DriverPostgres
	}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".duckdb", ".ddb":
		return config.DriverDuckDB
	default:
		return config.DriverSQLite
	}
}

func fetchRemoteDatabase(ctx context.Context, target string, cfg config.Config) (string, error) {
	bucket, key, err := storage.ParseS3URL(target)
	if err != nil {
		return "", err
	}
	store, err := s3.New(ctx, s3.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		Bucket:          bucket,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UseSSL:          cfg.ObjectStore.UseSSL,
	})
	if err != nil {
		return "", err
	}
	return storage.FetchToFile(ctx, store, key, "")
}

// newObjectStore builds the transcript store from configuration.
func newObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	return s3.New(ctx, s3.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: true,
	})
}
