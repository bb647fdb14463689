// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/majestrate/kasumi/backend/noop"
	"github.com/majestrate/kasumi/clock"
	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/tracker/models"
)

// recorder captures whatever the tracker core writes.
type recorder struct {
	err      error
	announce *models.AnnounceResponse
	scrape   *models.ScrapeResponse
}

func (r *recorder) WriteError(err error) error {
	r.err = err
	return nil
}

func (r *recorder) WriteAnnounce(res *models.AnnounceResponse) error {
	r.announce = res
	return nil
}

func (r *recorder) WriteScrape(res *models.ScrapeResponse) error {
	r.scrape = res
	return nil
}

func testConfig(mode string) *config.Config {
	cfg := config.DefaultConfig
	cfg.Mode = mode
	cfg.DriverConfig = config.DriverConfig{Name: "noop"}
	cfg.ReapInterval = config.Duration{0}
	cfg.Announce = config.Duration{30 * time.Minute}
	cfg.MinAnnounce = config.Duration{15 * time.Minute}
	return &cfg
}

func testTracker(t *testing.T, mode string, clk clock.Clock) *Tracker {
	tkr, err := NewWithClock(testConfig(mode), clk)
	require.NoError(t, err)
	return tkr
}

func testAnnounce(tkr *Tracker, id byte, ih models.InfoHash, left uint64, event int, ip string) *models.Announce {
	return &models.Announce{
		Config:   tkr.Config,
		Infohash: ih,
		PeerID:   testPeerID(id),
		IP:       net.ParseIP(ip),
		Port:     6881,
		Left:     left,
		NumWant:  -1,
		Event:    event,
	}
}

func TestBasicAnnounce(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePublic, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	err := tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w)
	require.NoError(t, err)
	require.Nil(t, w.err)
	require.NotNil(t, w.announce)

	assert.Equal(t, 0, w.announce.Complete)
	assert.Equal(t, 1, w.announce.Incomplete)
	assert.Empty(t, w.announce.Peers)
	assert.Equal(t, int64(1800), w.announce.Interval)
	assert.Equal(t, int64(900), w.announce.MinInterval)

	agg, _ := tkr.Storage.Aggregate(ih)
	assert.Equal(t, models.Swarm{Seeders: 0, Leechers: 1, Completed: 0}, agg)
}

func TestCompleteTransitionAnnounce(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePublic, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 0, models.EventCompleted, "1.1.1.1"), w))

	agg, _ := tkr.Storage.Aggregate(ih)
	assert.Equal(t, models.Swarm{Seeders: 1, Leechers: 0, Completed: 1}, agg)
}

func TestAnnounceNeverReturnsAnnouncer(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePublic, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 2, ih, 100, models.EventStarted, "2.2.2.2"), w))

	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventNone, "1.1.1.1"), w))
	require.Len(t, w.announce.Peers, 1)
	assert.Equal(t, testPeerID(2), w.announce.Peers[0].ID)

	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 2, ih, 100, models.EventNone, "2.2.2.2"), w))
	require.Len(t, w.announce.Peers, 1)
	assert.Equal(t, testPeerID(1), w.announce.Peers[0].ID)
}

func TestStoppedAnnounceRemovesPeer(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePublic, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 2, ih, 0, models.EventStarted, "2.2.2.2"), w))

	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStopped, "1.1.1.1"), w))

	agg, _ := tkr.Storage.Aggregate(ih)
	assert.Equal(t, models.Swarm{Seeders: 1, Leechers: 0, Completed: 0}, agg)
}

func TestReannounceDoesNotDoubleCount(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePublic, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	first, _ := tkr.Storage.Aggregate(ih)

	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	second, _ := tkr.Storage.Aggregate(ih)

	assert.Equal(t, first, second)
}

func TestPrivateModeRequiresKey(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePrivate, clk)
	defer tkr.Close()

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, testInfoHash(1), 100, models.EventStarted, "1.1.1.1"), w))
	assert.Equal(t, models.ErrMissingKey, w.err)
	assert.Nil(t, w.announce)
}

func TestPrivateModeKeyExpiry(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePrivate, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	key, err := tkr.Keys.NewKey(1)
	require.NoError(t, err)

	ann := testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1")
	ann.Passkey = key.Key

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(ann, w))
	require.Nil(t, w.err)
	require.NotNil(t, w.announce)

	clk.Advance(2)
	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(ann, w))
	assert.Equal(t, models.ErrExpiredKey, w.err)
}

func TestListedModeChecksWhitelist(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModeListed, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	assert.Equal(t, models.ErrTorrentUnlisted, w.err)

	require.NoError(t, tkr.Whitelist.Add(ih))

	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	assert.Nil(t, w.err)
	assert.NotNil(t, w.announce)
}

func TestPrivateListedModeChecksKeyBeforeWhitelist(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePrivateListed, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	// neither key nor whitelist: the key failure wins
	w := &recorder{}
	require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1"), w))
	assert.Equal(t, models.ErrMissingKey, w.err)

	key, err := tkr.Keys.NewKey(3600)
	require.NoError(t, err)

	ann := testAnnounce(tkr, 1, ih, 100, models.EventStarted, "1.1.1.1")
	ann.Passkey = key.Key
	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(ann, w))
	assert.Equal(t, models.ErrTorrentUnlisted, w.err)

	require.NoError(t, tkr.Whitelist.Add(ih))
	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(ann, w))
	assert.Nil(t, w.err)
	assert.NotNil(t, w.announce)
}

func TestNumWantClamped(t *testing.T) {
	clk := &clock.Stub{}
	tkr := testTracker(t, config.ModePublic, clk)
	defer tkr.Close()
	ih := testInfoHash(1)

	w := &recorder{}
	for i := byte(1); i <= 100; i++ {
		require.NoError(t, tkr.HandleAnnounce(testAnnounce(tkr, i, ih, 100, models.EventStarted, "1.1.1.1"), w))
	}

	ann := testAnnounce(tkr, 1, ih, 100, models.EventNone, "1.1.1.1")
	ann.NumWant = 1000
	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(ann, w))
	assert.Len(t, w.announce.Peers, 74)

	ann.NumWant = 5
	w = &recorder{}
	require.NoError(t, tkr.HandleAnnounce(ann, w))
	assert.Len(t, w.announce.Peers, 5)
}
