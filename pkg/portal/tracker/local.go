package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
)

// Local storage keys, one namespace per identity.
func noteKey(identityID, moduleID string) string { return fmt.Sprintf("note_%s_%s", identityID, moduleID) }
func noteIndexKey(identityID string) string      { return fmt.Sprintf("notes_index_%s", identityID) }
func progressKey(identityID string) string       { return fmt.Sprintf("module_progress_%s", identityID) }

const localTxRetries = 5

func localError(err error) error {
	return apperr.Wrap(apperr.KindBackend, "local storage is unavailable", err)
}

// watchRetry runs fn in an optimistic transaction over keys, retrying on contention.
func watchRetry(ctx context.Context, client *redis.Client, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < localTxRetries; attempt++ {
		err = client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readJSON(ctx context.Context, reader getter, key string, target interface{}) (bool, error) {
	raw, err := reader.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

type localProgress struct {
	client *redis.Client
	now    func() time.Time
}

// NewLocalProgress keeps progress in Redis under module_progress_{identity}.
func NewLocalProgress(client *redis.Client) ProgressRepository {
	return &localProgress{client: client, now: time.Now}
}

func (l *localProgress) Load(ctx context.Context, identityID string) (map[string]Progress, error) {
	values := make(map[string]Progress)
	if _, err := readJSON(ctx, l.client, progressKey(identityID), &values); err != nil {
		return nil, localError(err)
	}
	return values, nil
}

func (l *localProgress) Get(ctx context.Context, identityID, moduleID string) (Progress, bool, error) {
	values, err := l.Load(ctx, identityID)
	if err != nil {
		return Progress{}, false, err
	}
	value, ok := values[moduleID]
	return value, ok, nil
}

func (l *localProgress) Put(ctx context.Context, identityID, moduleID string, value Progress) (Progress, error) {
	key := progressKey(identityID)
	value.ModuleID = moduleID
	if value.LastAccessed.IsZero() {
		value.LastAccessed = l.now().UTC()
	}

	err := watchRetry(ctx, l.client, func(tx *redis.Tx) error {
		values := make(map[string]Progress)
		if _, err := readJSON(ctx, tx, key, &values); err != nil {
			return err
		}
		values[moduleID] = value
		payload, err := json.Marshal(values)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return Progress{}, localError(err)
	}
	return value, nil
}

type localNotes struct {
	client *redis.Client
	now    func() time.Time
}

// NewLocalNotes keeps notes in Redis under note_{identity}_{module}, with the
// touched module ids listed in notes_index_{identity}.
func NewLocalNotes(client *redis.Client) NoteRepository {
	return &localNotes{client: client, now: time.Now}
}

func (l *localNotes) Load(ctx context.Context, identityID string) (map[string]Note, error) {
	var index []string
	if _, err := readJSON(ctx, l.client, noteIndexKey(identityID), &index); err != nil {
		return nil, localError(err)
	}

	values := make(map[string]Note, len(index))
	for _, moduleID := range index {
		note, ok, err := l.Get(ctx, identityID, moduleID)
		if err != nil {
			return nil, err
		}
		if ok {
			values[moduleID] = note
		}
	}
	return values, nil
}

func (l *localNotes) Get(ctx context.Context, identityID, moduleID string) (Note, bool, error) {
	var note Note
	ok, err := readJSON(ctx, l.client, noteKey(identityID, moduleID), &note)
	if err != nil {
		return Note{}, false, localError(err)
	}
	return note, ok, nil
}

func (l *localNotes) Put(ctx context.Context, identityID, moduleID string, value Note) (Note, error) {
	key := noteKey(identityID, moduleID)
	indexKey := noteIndexKey(identityID)
	now := l.now().UTC()

	var stored Note
	err := watchRetry(ctx, l.client, func(tx *redis.Tx) error {
		var existing Note
		found, err := readJSON(ctx, tx, key, &existing)
		if err != nil {
			return err
		}
		var index []string
		if _, err := readJSON(ctx, tx, indexKey, &index); err != nil {
			return err
		}

		stored = Note{ModuleID: moduleID, Content: value.Content, CreatedAt: now, UpdatedAt: now}
		if found {
			stored.CreatedAt = existing.CreatedAt
		}
		if !contains(index, moduleID) {
			index = append(index, moduleID)
		}

		notePayload, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		indexPayload, err := json.Marshal(index)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, notePayload, 0)
			pipe.Set(ctx, indexKey, indexPayload, 0)
			return nil
		})
		return err
	}, key, indexKey)
	if err != nil {
		return Note{}, localError(err)
	}
	return stored, nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
