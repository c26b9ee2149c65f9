package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mezmur-app/mezmur-sync/config"
	httpapi "github.com/mezmur-app/mezmur-sync/internal/api/http"
	"github.com/mezmur-app/mezmur-sync/internal/catalogue"
	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
	fsremote "github.com/mezmur-app/mezmur-sync/internal/remote/firestore"
	pgremote "github.com/mezmur-app/mezmur-sync/internal/remote/postgres"
)

// PingFunc adapts a function to httpapi.Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Core holds the opened stores and the built catalogue shared by the
// binaries.
type Core struct {
	Local     kvstore.Store
	Profiles  profile.Store
	Verifier  *identity.FirebaseVerifier
	Index     *catalogue.Index
	Catalogue *catalogue.Syncer
	Stores    map[string]httpapi.Pinger

	closers []func() error
	log     *logging.Logger
}

// Open connects the configured local and remote backends and builds the
// catalogue index. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config) (core *Core, err error) {
	core = &Core{
		Stores: make(map[string]httpapi.Pinger),
		log:    logging.New("bootstrap"),
	}
	defer func() {
		if err != nil {
			core.Close()
			core = nil
		}
	}()

	if err = core.openLocal(cfg.Storage); err != nil {
		return core, err
	}
	hymns, err := core.openRemote(ctx, cfg.Remote)
	if err != nil {
		return core, err
	}

	base, err := LoadCatalogue(cfg.Catalogue)
	if err != nil {
		return core, err
	}
	core.Index = catalogue.NewIndex()
	core.Catalogue = catalogue.NewSyncer(core.Index, core.Local, hymns)
	if err = core.Catalogue.Init(ctx, base); err != nil {
		return core, fmt.Errorf("failed to build catalogue: %w", err)
	}
	core.log.Infof("open", "local=%s remote=%s hymns=%d", cfg.Storage.Backend, cfg.Remote.Backend, core.Index.Len())
	return core, nil
}

func (c *Core) openLocal(cfg config.StorageConfig) error {
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := kvstore.NewRedisStore(client, "")
		c.Local = store
		c.Stores["local"] = store
		c.closers = append(c.closers, client.Close)
	case config.BackendSQLite:
		store, err := kvstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		c.Local = store
		c.Stores["local"] = store
		c.closers = append(c.closers, store.Close)
	default:
		c.Local = kvstore.NewMemoryStore()
		c.Stores["local"] = PingFunc(func(context.Context) error { return nil })
	}
	return nil
}

func (c *Core) openRemote(ctx context.Context, cfg config.RemoteConfig) (catalogue.UpdateSource, error) {
	var hymns catalogue.UpdateSource
	firebaseConfigured := cfg.FirebaseCredentialsPath != "" || cfg.FirebaseProjectID != ""

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := OpenDB(ctx, DBOptions{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		if err := pgremote.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		c.Profiles = pgremote.NewProfileStore(pool)
		hymns = pgremote.NewHymnSource(pool)
		c.Stores["remote"] = pool
	case config.BackendFirestore:
		fb, err := InitializeFirebase(ctx, cfg, true)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, fb.Close)
		c.Profiles = fsremote.NewProfileStore(fb.Firestore)
		hymns = fsremote.NewHymnSource(fb.Firestore)
		c.Verifier = identity.NewFirebaseVerifier(fb.Auth)
		c.Stores["remote"] = PingFunc(func(ctx context.Context) error {
			_, err := fb.Firestore.Collection(profile.UsersCollection).Limit(1).Documents(ctx).GetAll()
			return err
		})
		firebaseConfigured = false
	default:
		c.Profiles = profile.NewMemoryStore()
		c.Stores["remote"] = PingFunc(func(context.Context) error { return nil })
	}

	if firebaseConfigured {
		fb, err := InitializeFirebase(ctx, cfg, false)
		if err != nil {
			return nil, err
		}
		c.Verifier = identity.NewFirebaseVerifier(fb.Auth)
	}
	return hymns, nil
}

// LoadCatalogue reads the base bundle, or the embedded sample when no path
// is configured, plus the optional Afan Oromo bundle.
func LoadCatalogue(cfg config.CatalogueConfig) ([]catalogue.Hymn, error) {
	var (
		base []catalogue.Hymn
		err  error
	)
	if cfg.Path != "" {
		base, err = catalogue.LoadBundleFile(cfg.Path, catalogue.BundleOptions{})
	} else {
		base, err = catalogue.SampleHymns()
	}
	if err != nil {
		return nil, err
	}
	if cfg.OromoPath != "" {
		oromo, err := catalogue.LoadBundleFile(cfg.OromoPath, catalogue.OromoBundle)
		if err != nil {
			return nil, err
		}
		base = append(base, oromo...)
	}
	return base, nil
}

// Close releases every opened backend, last opened first.
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
