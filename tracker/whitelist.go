// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"sync"

	"github.com/golang/glog"

	"github.com/majestrate/kasumi/backend"
	"github.com/majestrate/kasumi/tracker/models"
)

// Whitelist is the persistent set of admitted info hashes with its memory
// cache. Reads hit the cache only; writes go to the backend first.
type Whitelist struct {
	mu      sync.RWMutex
	hashes  map[models.InfoHash]struct{}
	backend backend.Conn
}

// NewWhitelist builds a Whitelist over a backend connection and warms the
// cache.
func NewWhitelist(conn backend.Conn) (*Whitelist, error) {
	wl := &Whitelist{
		hashes:  make(map[models.InfoHash]struct{}),
		backend: conn,
	}
	loaded, err := conn.LoadInfohashes()
	if err != nil {
		return nil, err
	}
	for _, ih := range loaded {
		wl.hashes[ih] = struct{}{}
	}
	glog.V(1).Infof("warmed whitelist cache with %d info hashes", len(loaded))
	return wl, nil
}

// Add whitelists an info hash. Re-adding is a no-op that succeeds.
func (wl *Whitelist) Add(ih models.InfoHash) error {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	if err := wl.backend.InsertInfohash(ih); err != nil {
		return err
	}
	wl.hashes[ih] = struct{}{}
	return nil
}

// Remove drops an info hash from the whitelist. Absence is not an error.
func (wl *Whitelist) Remove(ih models.InfoHash) error {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	if err := wl.backend.DeleteInfohash(ih); err != nil {
		return err
	}
	delete(wl.hashes, ih)
	return nil
}

// Contains reports whether an info hash is whitelisted.
func (wl *Whitelist) Contains(ih models.InfoHash) bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	_, ok := wl.hashes[ih]
	return ok
}

// Len returns the number of whitelisted info hashes.
func (wl *Whitelist) Len() int {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return len(wl.hashes)
}
