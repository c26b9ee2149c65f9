// Package firestore backs the remote profile store and the hymn update feed
// with Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// ProfileStore implements profile.Store over a Firestore client.
type ProfileStore struct {
	client *firestore.Client
}

// NewProfileStore wraps an initialized client.
func NewProfileStore(client *firestore.Client) *ProfileStore {
	return &ProfileStore{client: client}
}

func (s *ProfileStore) GetDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, profile.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore get %s/%s: %w", collection, id, err)
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, profile.ErrNotFound)
	}
	return snap.Data(), nil
}

func (s *ProfileStore) MergeSet(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(data), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore merge %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *ProfileStore) UpdateFields(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates(data))
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s/%s: %w", collection, id, profile.ErrNotFound)
		}
		return fmt.Errorf("firestore update %s/%s: %w", collection, id, err)
	}
	return nil
}

// toFirestore swaps the portable server timestamp sentinel for Firestore's.
func toFirestore(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = firestoreValue(v)
	}
	return out
}

func firestoreValue(v any) any {
	if profile.IsServerTimestamp(v) {
		return firestore.ServerTimestamp
	}
	return v
}

// updates turns top-level fields into Firestore field updates so untouched
// fields keep their values.
func updates(data map[string]any) []firestore.Update {
	out := make([]firestore.Update, 0, len(data))
	for _, k := range sortedFields(data) {
		out = append(out, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: firestoreValue(data[k])})
	}
	return out
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.NotFound {
		return true
	}
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Code() == codes.NotFound
	}
	return false
}
