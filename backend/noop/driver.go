// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package noop implements a backend that holds keys and whitelist entries in
// memory only. Useful for public trackers that never restart with state, and
// for tests.
package noop

import (
	"sync"

	"github.com/majestrate/kasumi/backend"
	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/tracker/models"
)

type driver struct{}

// Conn is an in-memory backend.Conn.
type Conn struct {
	mu         sync.RWMutex
	keys       map[string]models.Key
	infohashes map[models.InfoHash]struct{}
}

// New returns a fresh in-memory connection. Exported so tests can construct
// one without going through the registry.
func New() *Conn {
	return &Conn{
		keys:       make(map[string]models.Key),
		infohashes: make(map[models.InfoHash]struct{}),
	}
}

func (d *driver) New(cfg *config.DriverConfig) (backend.Conn, error) {
	return New(), nil
}

func (c *Conn) InsertKey(key models.Key) error {
	c.mu.Lock()
	c.keys[key.Key] = key
	c.mu.Unlock()
	return nil
}

func (c *Conn) GetKey(key string) (models.Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[key]
	if !ok {
		return models.Key{}, models.ErrUnknownKey
	}
	return k, nil
}

func (c *Conn) DeleteKey(key string) error {
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
	return nil
}

func (c *Conn) LoadKeys() (keys []models.Key, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range c.keys {
		keys = append(keys, k)
	}
	return
}

func (c *Conn) InsertInfohash(ih models.InfoHash) error {
	c.mu.Lock()
	c.infohashes[ih] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Conn) DeleteInfohash(ih models.InfoHash) error {
	c.mu.Lock()
	delete(c.infohashes, ih)
	c.mu.Unlock()
	return nil
}

func (c *Conn) LoadInfohashes() (hashes []models.InfoHash, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ih := range c.infohashes {
		hashes = append(hashes, ih)
	}
	return
}

func (c *Conn) Ping() error { return nil }

func (c *Conn) Close() error { return nil }

func init() {
	backend.Register("noop", &driver{})
}
