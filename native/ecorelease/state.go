package ecorelease

import (
	"encoding/json"
	"errors"
	"fmt"

	"ecorelease/storage"
)

// ConfigKey is the storage key of the singleton State.
var ConfigKey = storage.LengthPrefixed([]byte("config"))

// LoadState reads the singleton record.
func LoadState(store storage.Reader) (*State, error) {
	data, err := store.Get(ConfigKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("ecorelease: load state: %w", err)
	}
	state := new(State)
	if err := json.Unmarshal(data, state); err != nil {
		return nil, invalid("decode state", err)
	}
	return state, nil
}

// SaveState overwrites the singleton record.
func SaveState(store storage.KVStore, state *State) error {
	if state == nil {
		return fmt.Errorf("ecorelease: nil state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ecorelease: encode state: %w", err)
	}
	return store.Put(ConfigKey, data)
}

// UpdateState loads the record, applies fn to a copy and stores the copy only
// when fn succeeds. A failing fn leaves the store untouched.
func UpdateState(store storage.KVStore, fn func(*State) error) (*State, error) {
	current, err := LoadState(store)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := SaveState(store, next); err != nil {
		return nil, err
	}
	return next, nil
}
