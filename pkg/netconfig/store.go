// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package netconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
)

// Store is the persistence shape the manager consumes: a profile catalog
// plus a single-row active pointer.
type Store interface {
	// List returns every profile in the catalog.
	List(ctx context.Context) ([]*NetworkProfile, error)
	// Get returns one profile by ID, or a not_found error.
	Get(ctx context.Context, profileID string) (*NetworkProfile, error)
	// Put inserts or replaces a profile.
	Put(ctx context.Context, p *NetworkProfile) error
	// ActiveRef returns the active pointer, or a not_found error when no
	// profile has ever been activated.
	ActiveRef(ctx context.Context) (ActiveRef, error)
	// SetActiveRef replaces the active pointer.
	SetActiveRef(ctx context.Context, ref ActiveRef) error
	// Close releases the store.
	Close() error
}

const (
	profileKeyPrefix = "network_settings:"
	activeKey        = "network_settings_active"
)

// buntStore persists profiles in a buntdb document file. Pass ":memory:"
// for an ephemeral store in tests.
type buntStore struct {
	db *buntdb.DB
}

// OpenStore opens (or creates) the profile store at path.
func OpenStore(path string) (Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.NewTransientError(fmt.Sprintf("open profile store %s", path), err)
	}
	return &buntStore{db: db}, nil
}

func profileKey(profileID string) string {
	return profileKeyPrefix + profileID
}

func (s *buntStore) List(_ context.Context) ([]*NetworkProfile, error) {
	var out []*NetworkProfile
	err := s.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		iterErr := tx.AscendKeys(profileKeyPrefix+"*", func(_, value string) bool {
			var p NetworkProfile
			if decodeErr = json.Unmarshal([]byte(value), &p); decodeErr != nil {
				return false
			}
			out = append(out, &p)
			return true
		})
		if decodeErr != nil {
			return decodeErr
		}
		return iterErr
	})
	if err != nil {
		return nil, errors.NewTransientError("list profiles", err)
	}
	return out, nil
}

func (s *buntStore) Get(_ context.Context, profileID string) (*NetworkProfile, error) {
	var p NetworkProfile
	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(profileKey(profileID))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), &p)
	})
	if err == buntdb.ErrNotFound {
		return nil, errors.NewNotFoundError(fmt.Sprintf("profile %q not found", profileID), nil)
	}
	if err != nil {
		return nil, errors.NewTransientError(fmt.Sprintf("read profile %q", profileID), err)
	}
	return &p, nil
}

func (s *buntStore) Put(_ context.Context, p *NetworkProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("marshal profile %q", p.ProfileID), err)
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(profileKey(p.ProfileID), string(data), nil)
		return err
	})
	if err != nil {
		return errors.NewTransientError(fmt.Sprintf("write profile %q", p.ProfileID), err)
	}
	return nil
}

func (s *buntStore) ActiveRef(_ context.Context) (ActiveRef, error) {
	var ref ActiveRef
	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(activeKey)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), &ref)
	})
	if err == buntdb.ErrNotFound {
		return ActiveRef{}, errors.NewNotFoundError("no active profile pointer", nil)
	}
	if err != nil {
		return ActiveRef{}, errors.NewTransientError("read active pointer", err)
	}
	return ref, nil
}

func (s *buntStore) SetActiveRef(_ context.Context, ref ActiveRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return errors.NewInternalError("marshal active pointer", err)
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(activeKey, string(data), nil)
		return err
	})
	if err != nil {
		return errors.NewTransientError("write active pointer", err)
	}
	return nil
}

func (s *buntStore) Close() error {
	return s.db.Close()
}
