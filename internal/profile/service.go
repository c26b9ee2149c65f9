package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
)

// StatusReader reports whether the device is currently online.
type StatusReader interface {
	IsConnected() bool
}

// StatusFunc adapts a plain function to StatusReader.
type StatusFunc func() bool

func (f StatusFunc) IsConnected() bool { return f() }

// Outcome is the terminal state of a sync call.
type Outcome string

const (
	OutcomeSynced Outcome = "synced"
	OutcomeQueued Outcome = "queued"
	OutcomeFailed Outcome = "failed"
)

// Result is returned by the per-domain sync calls. Only OutcomeFailed
// carries an error; a queued write is a success from the caller's view.
type Result struct {
	Outcome Outcome `json:"status"`
	Err     error   `json:"-"`
}

// OK reports whether the write was either applied or safely queued.
func (r Result) OK() bool { return r.Outcome != OutcomeFailed }

// ReplayResult summarizes one ProcessQueue pass.
type ReplayResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// Option configures a Service.
type Option func(*Service)

// WithReplayRate paces queue replay to rps remote writes per second.
// Zero or negative leaves replay unpaced.
func WithReplayRate(rps float64) Option {
	return func(s *Service) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger replaces the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service pushes local user state toward the remote profile, tolerating
// offline periods by queueing writes locally.
type Service struct {
	remote  Store
	conn    StatusReader
	queue   *Queue
	limiter *rate.Limiter
	log     *logging.Logger

	replayMu sync.Mutex
}

// NewService creates a Service. A nil conn is treated as always online.
func NewService(remote Store, local kvstore.Store, conn StatusReader, opts ...Option) *Service {
	s := &Service{
		remote:  remote,
		conn:    conn,
		queue:   NewQueue(local),
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     logging.New("profile_sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queue exposes the underlying sync queue.
func (s *Service) Queue() *Queue {
	return s.queue
}

func (s *Service) online() bool {
	return s.conn == nil || s.conn.IsConnected()
}

// SyncFavorites pushes the full favorites list.
func (s *Service) SyncFavorites(ctx context.Context, userID string, favorites []string) Result {
	return s.Sync(ctx, userID, SyncFavorites, favorites)
}

// SyncPlaylists pushes the full playlist set.
func (s *Service) SyncPlaylists(ctx context.Context, userID string, playlists []Playlist) Result {
	return s.Sync(ctx, userID, SyncPlaylists, playlists)
}

// SyncTheme pushes the theme preference.
func (s *Service) SyncTheme(ctx context.Context, userID, themeID string) Result {
	return s.Sync(ctx, userID, SyncTheme, themeID)
}

// SyncLanguage pushes the language preference.
func (s *Service) SyncLanguage(ctx context.Context, userID, language string) Result {
	return s.Sync(ctx, userID, SyncLanguage, language)
}

// Sync writes through to the remote when online and queues otherwise. A
// remote failure is treated exactly like being offline.
func (s *Service) Sync(ctx context.Context, userID string, t SyncType, data any) Result {
	if strings.TrimSpace(userID) == "" {
		return Result{Outcome: OutcomeFailed, Err: ErrMissingUser}
	}
	if _, err := t.Field(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if s.online() {
		err := s.Push(ctx, userID, t, data)
		if err == nil {
			return Result{Outcome: OutcomeSynced}
		}
		s.log.Warnf("sync_"+string(t), "user=%s remote write failed, queueing: %v", userID, err)
	}

	entry, err := NewEntry(userID, t, data)
	if err == nil {
		err = s.QueueSync(ctx, entry)
	}
	if err != nil {
		s.log.Error("sync_"+string(t), err)
		return Result{Outcome: OutcomeFailed, Err: &SyncError{Op: "enqueue", Type: t, Err: err}}
	}
	return Result{Outcome: OutcomeQueued}
}

// QueueSync appends an entry to the persisted queue.
func (s *Service) QueueSync(ctx context.Context, entry Entry) error {
	return s.queue.Append(ctx, entry)
}

// Push performs the remote write without queueing: a partial update of the
// user document, falling back to a merge-create when it does not exist.
func (s *Service) Push(ctx context.Context, userID string, t SyncType, data any) error {
	field, err := t.Field()
	if err != nil {
		return err
	}
	value, err := documentValue(data)
	if err != nil {
		return &SyncError{Op: "push", Type: t, Err: err}
	}

	fields := map[string]any{
		field:         value,
		FieldLastSync: ServerTimestamp,
	}
	err = s.remote.UpdateFields(ctx, UsersCollection, userID, fields)
	if errors.Is(err, ErrNotFound) {
		err = s.remote.MergeSet(ctx, UsersCollection, userID, fields)
	}
	if err != nil {
		return &SyncError{Op: "push", Type: t, Err: err}
	}
	return nil
}

// ProcessQueue replays userID's queued entries in order. Other users'
// entries are left queued. The replayed entries are only removed after the
// whole pass succeeds; the first failure aborts the pass and leaves them for
// the next attempt. Passes run one at a time.
func (s *Service) ProcessQueue(ctx context.Context, userID string) (ReplayResult, error) {
	var res ReplayResult
	if strings.TrimSpace(userID) == "" {
		return res, ErrMissingUser
	}

	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	entries, err := s.queue.EntriesFor(ctx, userID)
	if err != nil {
		return res, err
	}
	if len(entries) == 0 {
		return res, nil
	}

	for _, entry := range entries {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		data, err := decodeEntry(entry)
		if err != nil {
			s.log.Warnf("process_queue", "skipping entry type=%s: %v", entry.Type, err)
			res.Skipped++
			continue
		}
		s.log.Debugf("process_queue", "replaying type=%s queued_at=%d", entry.Type, entry.Timestamp)
		if err := s.Push(ctx, userID, entry.Type, data); err != nil {
			s.log.Error("process_queue", err)
			return res, &SyncError{Op: "replay", Type: entry.Type, Err: err}
		}
		res.Processed++
	}

	if err := s.queue.Remove(ctx, entries); err != nil {
		return res, fmt.Errorf("failed to trim sync queue: %w", err)
	}
	s.log.Infof("process_queue", "user=%s processed=%d skipped=%d", userID, res.Processed, res.Skipped)
	return res, nil
}

func decodeEntry(e Entry) (any, error) {
	switch e.Type {
	case SyncFavorites:
		var favs []string
		err := json.Unmarshal(e.Data, &favs)
		return favs, err
	case SyncPlaylists:
		var pls []Playlist
		err := json.Unmarshal(e.Data, &pls)
		return pls, err
	case SyncTheme, SyncLanguage:
		var v string
		err := json.Unmarshal(e.Data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSyncType, string(e.Type))
	}
}

// GetProfile fetches the remote profile, returning ErrProfileNotFound when
// the user has none.
func (s *Service) GetProfile(ctx context.Context, userID string) (*RemoteProfile, error) {
	doc, err := s.remote.GetDocument(ctx, UsersCollection, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return DecodeProfile(doc)
}

// SaveProfile merges fields into the profile, creating it if needed.
func (s *Service) SaveProfile(ctx context.Context, userID string, fields map[string]any) error {
	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		value, err := documentValue(v)
		if err != nil {
			return err
		}
		data[k] = value
	}
	data[FieldLastSync] = ServerTimestamp
	if err := s.remote.MergeSet(ctx, UsersCollection, userID, data); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// SaveProfilePicture stores a base64 JPEG inline as the profile photo URL.
func (s *Service) SaveProfilePicture(ctx context.Context, userID, base64Data string) (string, error) {
	photoURL := "data:image/jpeg;base64," + base64Data
	if err := s.SaveProfile(ctx, userID, map[string]any{FieldPhotoURL: photoURL}); err != nil {
		return "", err
	}
	return photoURL, nil
}
