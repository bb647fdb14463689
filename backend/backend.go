// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package backend provides a generic interface for the persistent state of a
// BitTorrent tracker: issued authentication keys and the info-hash whitelist.
// Swarm state is deliberately never persisted.
package backend

import (
	"fmt"

	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/tracker/models"
)

var drivers = make(map[string]Driver)

// Driver represents an interface to a long-running connection with a
// persistent data store.
type Driver interface {
	New(*config.DriverConfig) (Conn, error)
}

// Register makes a database driver available by the provided name.
//
// If Register is called twice with the same name or if driver is nil,
// it panics.
func Register(name string, driver Driver) {
	if driver == nil {
		panic("backend: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("backend: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open creates a connection specified by a configuration.
func Open(cfg *config.DriverConfig) (Conn, error) {
	driver, ok := drivers[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("backend: unknown driver %q (forgotten import?)", cfg.Name)
	}
	return driver.New(cfg)
}

// Conn represents a connection to the key and whitelist store.
type Conn interface {
	// InsertKey persists an issued authentication key.
	InsertKey(key models.Key) error

	// GetKey returns a persisted key record, or models.ErrUnknownKey.
	GetKey(key string) (models.Key, error)

	// DeleteKey removes a key by literal value. Absence is not an error.
	DeleteKey(key string) error

	// LoadKeys returns every persisted key for warming the memory cache.
	LoadKeys() ([]models.Key, error)

	// InsertInfohash adds an info hash to the whitelist. Re-adding an
	// existing hash is a no-op.
	InsertInfohash(ih models.InfoHash) error

	// DeleteInfohash removes an info hash from the whitelist. Absence is not
	// an error.
	DeleteInfohash(ih models.InfoHash) error

	// LoadInfohashes returns the whole whitelist for warming the memory
	// cache.
	LoadInfohashes() ([]models.InfoHash, error)

	// Ping checks the liveness of the store.
	Ping() error

	// Close terminates the connection.
	Close() error
}
