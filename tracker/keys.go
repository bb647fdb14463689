// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/majestrate/kasumi/backend"
	"github.com/majestrate/kasumi/clock"
	"github.com/majestrate/kasumi/tracker/models"
)

const keyLength = 32

// keyAlphabet gives 62 symbols; 32 draws carry just over 190 bits of entropy.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// genKey draws a fresh random key from the printable alphabet.
func genKey() string {
	var raw [keyLength]byte
	_, _ = io.ReadFull(rand.Reader, raw[:])
	for i, b := range raw {
		raw[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(raw[:])
}

// KeyStore issues and validates the time-bounded authentication keys used in
// the private tracker modes. Issued keys survive restarts through the backend;
// the memory cache is warmed from it at construction.
type KeyStore struct {
	mu      sync.RWMutex
	keys    map[string]models.Key
	backend backend.Conn
	clock   clock.Clock
}

// NewKeyStore builds a KeyStore over a backend connection and warms the cache.
func NewKeyStore(conn backend.Conn, clk clock.Clock) (*KeyStore, error) {
	ks := &KeyStore{
		keys:    make(map[string]models.Key),
		backend: conn,
		clock:   clk,
	}
	loaded, err := conn.LoadKeys()
	if err != nil {
		return nil, err
	}
	for _, k := range loaded {
		ks.keys[k.Key] = k
	}
	glog.V(1).Infof("warmed key cache with %d keys", len(loaded))
	return ks, nil
}

// NewKey issues a key valid for the given number of seconds and persists it.
func (ks *KeyStore) NewKey(durationSeconds int64) (models.Key, error) {
	key := models.Key{
		Key:        genKey(),
		ValidUntil: ks.clock.Now() + durationSeconds,
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.backend.InsertKey(key); err != nil {
		return models.Key{}, err
	}
	ks.keys[key.Key] = key
	return key, nil
}

// VerifyKey checks that a key exists and has not expired.
func (ks *KeyStore) VerifyKey(key string) error {
	ks.mu.RLock()
	record, ok := ks.keys[key]
	ks.mu.RUnlock()
	if !ok {
		return models.ErrUnknownKey
	}
	if record.Expired(ks.clock.Now()) {
		return models.ErrExpiredKey
	}
	return nil
}

// RevokeKey deletes a key by literal value. Revoking an absent key succeeds.
func (ks *KeyStore) RevokeKey(key string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if err := ks.backend.DeleteKey(key); err != nil {
		return err
	}
	delete(ks.keys, key)
	return nil
}

// Len returns the number of cached keys.
func (ks *KeyStore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}
