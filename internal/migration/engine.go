// Package migration moves guest data into a signed-in account. Each domain
// is migrated once, guarded by a per-domain flag; the account-wide flag is
// written only after every domain has succeeded.
package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/library"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// Domain names used in per-domain flag keys.
const (
	DomainFavorites = "favorites"
	DomainTheme     = "theme"
	DomainLanguage  = "language"
	DomainPlaylists = "playlists"
)

const flagValue = "true"

// Remote is the part of the profile service migration needs.
// *profile.Service satisfies it.
type Remote interface {
	GetProfile(ctx context.Context, userID string) (*profile.RemoteProfile, error)
	Push(ctx context.Context, userID string, t profile.SyncType, data any) error
	ProcessQueue(ctx context.Context, userID string) (profile.ReplayResult, error)
}

// DomainResult reports one domain of a migration run.
type DomainResult struct {
	Domain      string `json:"domain"`
	Migrated    int    `json:"migrated"`
	Merged      bool   `json:"merged,omitempty"`
	AlreadyDone bool   `json:"alreadyDone,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result reports a full migration run.
type Result struct {
	AlreadyMigrated bool           `json:"alreadyMigrated"`
	Complete        bool           `json:"complete"`
	Domains         []DomainResult `json:"domains,omitempty"`
}

// PullResult reports what PullCloudData wrote locally.
type PullResult struct {
	Favorites int    `json:"favorites"`
	Playlists int    `json:"playlists"`
	Theme     string `json:"theme,omitempty"`
	Language  string `json:"language,omitempty"`
}

// SignInResult is the outcome of OnSignIn.
type SignInResult struct {
	Migration Result               `json:"migration"`
	Pull      *PullResult          `json:"pull,omitempty"`
	Replay    profile.ReplayResult `json:"replay"`
}

// Engine runs migrations against a local store and the remote profile.
type Engine struct {
	local  kvstore.Store
	remote Remote
	log    *logging.Logger
	newID  func() string
}

// NewEngine creates an Engine.
func NewEngine(local kvstore.Store, remote Remote) *Engine {
	return &Engine{
		local:  local,
		remote: remote,
		log:    logging.New("migration"),
		newID:  library.NewPlaylistID,
	}
}

// NeedsMigration reports whether userID has not finished a full migration.
func (e *Engine) NeedsMigration(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, profile.ErrMissingUser
	}
	_, ok, err := e.local.Get(ctx, kvstore.MigratedKey(userID))
	if err != nil {
		return false, fmt.Errorf("failed to read migration flag: %w", err)
	}
	return !ok, nil
}

// PerformFullMigration migrates every unfinished domain. Domain failures are
// reported in the result and joined into the returned error; the remaining
// domains still run.
func (e *Engine) PerformFullMigration(ctx context.Context, userID string) (Result, error) {
	needs, err := e.NeedsMigration(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !needs {
		return Result{AlreadyMigrated: true, Complete: true}, nil
	}

	steps := []struct {
		domain string
		run    func(context.Context, string) (DomainResult, error)
	}{
		{DomainFavorites, e.MigrateFavorites},
		{DomainTheme, e.MigrateTheme},
		{DomainLanguage, e.MigrateLanguage},
		{DomainPlaylists, e.MigratePlaylists},
	}

	var (
		res  Result
		errs []error
	)
	for _, step := range steps {
		done, err := e.domainDone(ctx, userID, step.domain)
		if err != nil {
			errs = append(errs, err)
			res.Domains = append(res.Domains, DomainResult{Domain: step.domain, Error: err.Error()})
			continue
		}
		if done {
			res.Domains = append(res.Domains, DomainResult{Domain: step.domain, AlreadyDone: true})
			continue
		}

		dr, err := step.run(ctx, userID)
		if err != nil {
			e.log.Errorf("perform_full_migration", "user=%s domain=%s: %v", userID, step.domain, err)
			dr = DomainResult{Domain: step.domain, Error: err.Error()}
			errs = append(errs, fmt.Errorf("migrate %s: %w", step.domain, err))
		}
		res.Domains = append(res.Domains, dr)
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	if err := e.local.Set(ctx, kvstore.MigratedKey(userID), flagValue); err != nil {
		return res, fmt.Errorf("failed to set migration flag: %w", err)
	}
	res.Complete = true
	e.log.Infof("perform_full_migration", "user=%s complete", userID)
	return res, nil
}

// MigrateFavorites pushes the union of guest and legacy favorites, merged
// after any remote favorites, then moves them under the user key.
func (e *Engine) MigrateFavorites(ctx context.Context, userID string) (DomainResult, error) {
	res := DomainResult{Domain: DomainFavorites}

	guest, err := e.loadIDs(ctx, kvstore.KeyGuestFavorites)
	if err != nil {
		return res, err
	}
	legacy, err := e.loadIDs(ctx, kvstore.KeyLegacyFavorites)
	if err != nil {
		return res, err
	}
	local := library.Union(guest, legacy)
	if len(local) == 0 {
		return res, e.markDomain(ctx, userID, DomainFavorites)
	}

	remote, err := e.remoteProfile(ctx, userID)
	if err != nil {
		return res, err
	}
	merged := local
	if remote != nil && remote.Favorites != nil {
		merged = library.Union(remote.Favorites, local)
		res.Merged = true
	}

	if err := e.remote.Push(ctx, userID, profile.SyncFavorites, merged); err != nil {
		return res, err
	}
	if err := kvstore.SetJSON(ctx, e.local, kvstore.FavoritesKey(userID), merged); err != nil {
		return res, err
	}
	for _, key := range []string{kvstore.KeyGuestFavorites, kvstore.KeyLegacyFavorites} {
		if err := e.local.Remove(ctx, key); err != nil {
			return res, fmt.Errorf("failed to remove %s: %w", key, err)
		}
	}
	res.Migrated = len(local)
	e.log.Infof("migrate_favorites", "user=%s local=%d total=%d", userID, len(local), len(merged))
	return res, e.markDomain(ctx, userID, DomainFavorites)
}

// MigratePlaylists appends guest playlists whose name is not already used
// remotely, giving each a fresh id.
func (e *Engine) MigratePlaylists(ctx context.Context, userID string) (DomainResult, error) {
	res := DomainResult{Domain: DomainPlaylists}

	local, err := library.LoadPlaylists(ctx, e.local, kvstore.KeyGuestPlaylists)
	if errors.Is(err, kvstore.ErrMalformed) {
		e.log.Warnf("migrate_playlists", "%v, treating as empty", err)
		local, err = nil, nil
	}
	if err != nil {
		return res, err
	}
	if len(local) == 0 {
		return res, e.markDomain(ctx, userID, DomainPlaylists)
	}

	remote, err := e.remoteProfile(ctx, userID)
	if err != nil {
		return res, err
	}

	merged := local
	migrated := len(local)
	if remote != nil && remote.Playlists != nil {
		names := make(map[string]struct{}, len(remote.Playlists))
		for _, pl := range remote.Playlists {
			names[pl.Name] = struct{}{}
		}
		merged = append([]profile.Playlist{}, remote.Playlists...)
		migrated = 0
		for _, pl := range local {
			if _, taken := names[pl.Name]; taken {
				continue
			}
			pl.ID = e.newID()
			merged = append(merged, pl)
			migrated++
		}
		res.Merged = true
	}

	if err := e.remote.Push(ctx, userID, profile.SyncPlaylists, merged); err != nil {
		return res, err
	}
	if err := kvstore.SetJSON(ctx, e.local, kvstore.PlaylistsKey(userID), merged); err != nil {
		return res, err
	}
	if err := e.local.Remove(ctx, kvstore.KeyGuestPlaylists); err != nil {
		return res, fmt.Errorf("failed to remove %s: %w", kvstore.KeyGuestPlaylists, err)
	}
	res.Migrated = migrated
	e.log.Infof("migrate_playlists", "user=%s migrated=%d total=%d", userID, migrated, len(merged))
	return res, e.markDomain(ctx, userID, DomainPlaylists)
}

// MigrateTheme pushes the local theme when it differs from the remote one.
func (e *Engine) MigrateTheme(ctx context.Context, userID string) (DomainResult, error) {
	return e.migratePreference(ctx, userID, DomainTheme, kvstore.KeySelectedTheme, profile.SyncTheme,
		func(p *profile.RemoteProfile) string { return p.Theme })
}

// MigrateLanguage pushes the local language when it differs from the remote one.
func (e *Engine) MigrateLanguage(ctx context.Context, userID string) (DomainResult, error) {
	return e.migratePreference(ctx, userID, DomainLanguage, kvstore.KeySelectedLanguage, profile.SyncLanguage,
		func(p *profile.RemoteProfile) string { return p.Language })
}

func (e *Engine) migratePreference(ctx context.Context, userID, domain, key string, t profile.SyncType, field func(*profile.RemoteProfile) string) (DomainResult, error) {
	res := DomainResult{Domain: domain}

	value, ok, err := e.local.Get(ctx, key)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || value == "" {
		return res, e.markDomain(ctx, userID, domain)
	}

	remote, err := e.remoteProfile(ctx, userID)
	if err != nil {
		return res, err
	}
	if remote == nil || field(remote) != value {
		if err := e.remote.Push(ctx, userID, t, value); err != nil {
			return res, err
		}
		res.Migrated = 1
	}
	return res, e.markDomain(ctx, userID, domain)
}

// PullCloudData overwrites local state with every field present in the
// remote profile. It returns profile.ErrProfileNotFound when there is none.
func (e *Engine) PullCloudData(ctx context.Context, userID string) (PullResult, error) {
	var res PullResult
	if userID == "" {
		return res, profile.ErrMissingUser
	}
	remote, err := e.remote.GetProfile(ctx, userID)
	if err != nil {
		return res, err
	}

	if remote.Favorites != nil {
		if err := kvstore.SetJSON(ctx, e.local, kvstore.FavoritesKey(userID), remote.Favorites); err != nil {
			return res, err
		}
		res.Favorites = len(remote.Favorites)
	}
	if remote.Theme != "" {
		if err := e.local.Set(ctx, kvstore.KeySelectedTheme, remote.Theme); err != nil {
			return res, err
		}
		res.Theme = remote.Theme
	}
	if remote.Language != "" {
		if err := e.local.Set(ctx, kvstore.KeySelectedLanguage, remote.Language); err != nil {
			return res, err
		}
		res.Language = remote.Language
	}
	if remote.Playlists != nil {
		if err := kvstore.SetJSON(ctx, e.local, kvstore.PlaylistsKey(userID), remote.Playlists); err != nil {
			return res, err
		}
		res.Playlists = len(remote.Playlists)
	}
	e.log.Infof("pull_cloud_data", "user=%s favorites=%d playlists=%d", userID, res.Favorites, res.Playlists)
	return res, nil
}

// OnSignIn runs the sign-in sequence for an account: migrate, pull the
// remote state, then replay any queued writes. Guests and anonymous
// sessions are a no-op. A missing remote profile is not an error.
func (e *Engine) OnSignIn(ctx context.Context, id identity.Identity) (SignInResult, error) {
	var res SignInResult
	if !id.Authenticated() {
		return res, nil
	}

	mig, err := e.PerformFullMigration(ctx, id.UserID)
	res.Migration = mig
	if err != nil {
		return res, err
	}

	pull, err := e.PullCloudData(ctx, id.UserID)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		e.log.Infof("on_sign_in", "user=%s has no remote profile yet", id.UserID)
	case err != nil:
		return res, err
	default:
		res.Pull = &pull
	}

	replay, err := e.remote.ProcessQueue(ctx, id.UserID)
	res.Replay = replay
	return res, err
}

// loadIDs reads a favorites list, treating a malformed value as empty.
func (e *Engine) loadIDs(ctx context.Context, key string) ([]string, error) {
	ids, err := library.LoadIDs(ctx, e.local, key)
	if errors.Is(err, kvstore.ErrMalformed) {
		e.log.Warnf("migrate_favorites", "%v, treating as empty", err)
		return nil, nil
	}
	return ids, err
}

// remoteProfile fetches the profile, returning nil when it does not exist.
func (e *Engine) remoteProfile(ctx context.Context, userID string) (*profile.RemoteProfile, error) {
	p, err := e.remote.GetProfile(ctx, userID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return nil, nil
	}
	return p, err
}

func (e *Engine) domainDone(ctx context.Context, userID, domain string) (bool, error) {
	_, ok, err := e.local.Get(ctx, kvstore.DomainMigratedKey(userID, domain))
	if err != nil {
		return false, fmt.Errorf("failed to read %s migration flag: %w", domain, err)
	}
	return ok, nil
}

func (e *Engine) markDomain(ctx context.Context, userID, domain string) error {
	if err := e.local.Set(ctx, kvstore.DomainMigratedKey(userID, domain), flagValue); err != nil {
		return fmt.Errorf("failed to set %s migration flag: %w", domain, err)
	}
	return nil
}
