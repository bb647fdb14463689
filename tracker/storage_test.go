// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majestrate/kasumi/tracker/models"
)

func testInfoHash(b byte) (ih models.InfoHash) {
	for i := range ih {
		ih[i] = b
	}
	return
}

func testPeerID(b byte) (id models.PeerID) {
	for i := range id {
		id[i] = b
	}
	return
}

func testPeer(id byte, left uint64, now int64) *models.Peer {
	return &models.Peer{
		ID:           testPeerID(id),
		IP:           net.ParseIP(fmt.Sprintf("10.0.0.%d", id)),
		Port:         6881,
		Left:         left,
		LastAnnounce: now,
	}
}

func TestUpsertCreatesSwarm(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	out := s.UpsertPeer(ih, testPeer(1, 100, 0), models.EventStarted, 74)
	require.True(t, out.CreatedTorrent)
	require.True(t, out.CreatedPeer)
	assert.Equal(t, models.Swarm{Seeders: 0, Leechers: 1, Completed: 0}, out.Swarm)
	assert.Empty(t, out.Peers)

	agg, ok := s.Aggregate(ih)
	require.True(t, ok)
	assert.Equal(t, out.Swarm, agg)
}

func TestUpsertReplacesSamePeerID(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 100, 0), models.EventStarted, 74)
	out := s.UpsertPeer(ih, testPeer(1, 50, 1), models.EventNone, 74)

	require.False(t, out.CreatedPeer)
	agg, _ := s.Aggregate(ih)
	assert.Equal(t, models.Swarm{Seeders: 0, Leechers: 1, Completed: 0}, agg)
}

func TestCompletedTransition(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 100, 0), models.EventStarted, 74)
	out := s.UpsertPeer(ih, testPeer(1, 0, 1), models.EventCompleted, 74)

	require.True(t, out.Snatched)
	agg, _ := s.Aggregate(ih)
	assert.Equal(t, models.Swarm{Seeders: 1, Leechers: 0, Completed: 1}, agg)
}

func TestCompletedWithoutPriorRecordIncrements(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	out := s.UpsertPeer(ih, testPeer(1, 0, 0), models.EventCompleted, 74)
	require.True(t, out.Snatched)
	agg, _ := s.Aggregate(ih)
	assert.Equal(t, uint64(1), agg.Completed)
}

func TestCompletedIsCountedOncePerPresence(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 100, 0), models.EventStarted, 74)
	s.UpsertPeer(ih, testPeer(1, 0, 1), models.EventCompleted, 74)
	out := s.UpsertPeer(ih, testPeer(1, 0, 2), models.EventCompleted, 74)

	require.False(t, out.Snatched)
	agg, _ := s.Aggregate(ih)
	assert.Equal(t, uint64(1), agg.Completed)
}

func TestStoppedRemovesPeerKeepsCompleted(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 100, 0), models.EventStarted, 74)
	s.UpsertPeer(ih, testPeer(2, 100, 0), models.EventStarted, 74)
	s.UpsertPeer(ih, testPeer(1, 0, 1), models.EventCompleted, 74)

	out := s.UpsertPeer(ih, testPeer(1, 0, 2), models.EventStopped, 74)
	require.True(t, out.Removed)
	assert.Empty(t, out.Peers)

	agg, _ := s.Aggregate(ih)
	assert.Equal(t, models.Swarm{Seeders: 0, Leechers: 1, Completed: 1}, agg)
}

func TestStoppedOnUnknownSwarmDoesNotCreateIt(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	out := s.UpsertPeer(ih, testPeer(1, 100, 0), models.EventStopped, 74)
	require.True(t, out.Removed)
	_, ok := s.Aggregate(ih)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestSampleExcludesAnnouncer(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	for i := byte(1); i <= 10; i++ {
		s.UpsertPeer(ih, testPeer(i, 100, 0), models.EventStarted, 74)
	}

	for i := byte(1); i <= 10; i++ {
		peers := s.PeersFor(ih, testPeerID(i), 74)
		assert.Len(t, peers, 9)
		for _, p := range peers {
			assert.NotEqual(t, testPeerID(i), p.ID)
		}
	}
}

func TestSampleHonorsLimit(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	for i := byte(1); i <= 100; i++ {
		s.UpsertPeer(ih, testPeer(i, 100, 0), models.EventStarted, 74)
	}

	peers := s.PeersFor(ih, testPeerID(1), 74)
	assert.Len(t, peers, 74)

	peers = s.PeersFor(ih, testPeerID(1), 0)
	assert.Empty(t, peers)
}

func TestAggregateMatchesPeerCount(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 0, 0), models.EventStarted, 74)
	s.UpsertPeer(ih, testPeer(2, 100, 0), models.EventStarted, 74)
	s.UpsertPeer(ih, testPeer(3, 100, 0), models.EventStarted, 74)

	agg, _ := s.Aggregate(ih)
	peers := s.PeersFor(ih, models.PeerID{}, 74)
	assert.Equal(t, len(peers), agg.Seeders+agg.Leechers)
}

func TestUnknownInfohashAggregatesToZero(t *testing.T) {
	s := NewStorage(4)
	agg, ok := s.Aggregate(testInfoHash(9))
	assert.False(t, ok)
	assert.Equal(t, models.Swarm{}, agg)
}

func TestReapDropsStalePeers(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 0, 100), models.EventStarted, 74)
	s.UpsertPeer(ih, testPeer(2, 50, 500), models.EventStarted, 74)

	res := s.Reap(1000, 600, false)
	assert.Equal(t, 1, res.Seeders)
	assert.Equal(t, 0, res.Leechers)

	agg, ok := s.Aggregate(ih)
	require.True(t, ok)
	assert.Equal(t, models.Swarm{Seeders: 0, Leechers: 1, Completed: 0}, agg)
}

func TestReapKeepsEmptySwarmsByDefault(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 0, 0), models.EventCompleted, 74)
	s.Reap(1000, 100, false)
	s.Reap(2000, 100, false)

	agg, ok := s.Aggregate(ih)
	require.True(t, ok)
	assert.Equal(t, uint64(1), agg.Completed)
}

func TestReapPurgesEmptySwarmsAfterOneCycle(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 0, 0), models.EventStarted, 74)

	res := s.Reap(1000, 100, true)
	assert.Equal(t, 0, res.Torrents)
	_, ok := s.Aggregate(ih)
	require.True(t, ok)

	res = s.Reap(2000, 100, true)
	assert.Equal(t, 1, res.Torrents)
	_, ok = s.Aggregate(ih)
	assert.False(t, ok)
}

func TestReapPurgeResetsWhenSwarmRefills(t *testing.T) {
	s := NewStorage(4)
	ih := testInfoHash(1)

	s.UpsertPeer(ih, testPeer(1, 0, 0), models.EventStarted, 74)
	s.Reap(1000, 100, true)

	// a new announce arrives between sweeps
	s.UpsertPeer(ih, testPeer(2, 0, 1500), models.EventStarted, 74)

	res := s.Reap(2000, 1000, true)
	assert.Equal(t, 0, res.Torrents)
	_, ok := s.Aggregate(ih)
	assert.True(t, ok)
}

func TestDistinctInfohashesAreIndependent(t *testing.T) {
	s := NewStorage(4)

	for i := byte(0); i < 16; i++ {
		s.UpsertPeer(testInfoHash(i), testPeer(1, 0, 0), models.EventStarted, 74)
	}
	assert.Equal(t, 16, s.Len())
	assert.Len(t, s.All(), 16)
}
