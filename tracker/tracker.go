// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package tracker provides the announce and scrape core of a BitTorrent
// tracker, independent of any transport protocol.
package tracker

import (
	"time"

	"github.com/golang/glog"

	"github.com/majestrate/kasumi/backend"
	"github.com/majestrate/kasumi/clock"
	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/stats"
	"github.com/majestrate/kasumi/tracker/models"
)

// Tracker represents the logic necessary to service BitTorrent announces,
// independently of the underlying data transports used.
type Tracker struct {
	Config  *config.Config
	Backend backend.Conn

	Storage   *Storage
	Keys      *KeyStore
	Whitelist *Whitelist

	clock clock.Clock

	shutdown chan struct{}
}

// New creates a new Tracker, loads persistent state from the configured
// backend, and starts the peer reaper.
func New(cfg *config.Config) (*Tracker, error) {
	return NewWithClock(cfg, clock.System)
}

// NewWithClock is New with an explicit time source, for tests.
func NewWithClock(cfg *config.Config, clk clock.Clock) (*Tracker, error) {
	conn, err := backend.Open(&cfg.DriverConfig)
	if err != nil {
		return nil, err
	}

	keys, err := NewKeyStore(conn, clk)
	if err != nil {
		conn.Close()
		return nil, err
	}

	whitelist, err := NewWhitelist(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	tkr := &Tracker{
		Config:    cfg,
		Backend:   conn,
		Storage:   NewStorage(cfg.TorrentMapShards),
		Keys:      keys,
		Whitelist: whitelist,
		clock:     clk,
		shutdown:  make(chan struct{}),
	}

	glog.V(1).Infof("tracker running in %s mode", cfg.Mode)

	if cfg.ReapInterval.Duration > 0 {
		go tkr.reapForever()
	}

	return tkr, nil
}

// Close stops the reaper and releases the backend connection.
func (tkr *Tracker) Close() error {
	close(tkr.shutdown)
	return tkr.Backend.Close()
}

// reapForever sweeps stale peers every ReapInterval until Close.
func (tkr *Tracker) reapForever() {
	ticker := time.NewTicker(tkr.Config.ReapInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-tkr.shutdown:
			return
		case <-ticker.C:
			tkr.reapOnce()
		}
	}
}

func (tkr *Tracker) reapOnce() {
	timeout := int64(tkr.Config.PeerTimeout.Duration / time.Second)
	before := time.Now()
	res := tkr.Storage.Reap(tkr.clock.Now(), timeout, tkr.Config.PurgeEmptyTorrents)
	glog.V(1).Infof("reaped %d seeders, %d leechers, %d torrents in %s",
		res.Seeders, res.Leechers, res.Torrents, time.Since(before))

	for i := 0; i < res.Seeders; i++ {
		stats.RecordPeerEvent(stats.ReapedSeed)
	}
	for i := 0; i < res.Leechers; i++ {
		stats.RecordPeerEvent(stats.ReapedLeech)
	}
	for i := 0; i < res.Torrents; i++ {
		stats.RecordEvent(stats.ReapedTorrent)
	}
}

// FindTorrent returns the aggregate counts for a known torrent, or
// models.ErrTorrentDNE.
func (tkr *Tracker) FindTorrent(ih models.InfoHash) (models.Swarm, error) {
	agg, ok := tkr.Storage.Aggregate(ih)
	if !ok {
		return agg, models.ErrTorrentDNE
	}
	return agg, nil
}
