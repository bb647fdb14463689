// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"hash/fnv"
	"sync"

	"github.com/majestrate/kasumi/tracker/models"
)

// swarm holds the live peers of one torrent plus its completion counter.
// Peers live in a dense slice so sampling can walk from a deterministic
// offset with wrap-around; the index map goes from peer ID to slice position.
type swarm struct {
	index     map[models.PeerID]int
	peers     []models.Peer
	seeders   int
	completed uint64

	// emptySeen is set by a reaper sweep that found the swarm empty, so the
	// next sweep may delete it.
	emptySeen bool
}

func newSwarm() *swarm {
	return &swarm{index: make(map[models.PeerID]int)}
}

func (sw *swarm) leechers() int {
	return len(sw.peers) - sw.seeders
}

func (sw *swarm) aggregate() models.Swarm {
	return models.Swarm{
		Seeders:   sw.seeders,
		Leechers:  sw.leechers(),
		Completed: sw.completed,
	}
}

// remove drops the peer at slice position i, keeping the slice dense.
func (sw *swarm) remove(i int) {
	removed := sw.peers[i]
	if removed.Seeding() {
		sw.seeders--
	}
	last := len(sw.peers) - 1
	if i != last {
		sw.peers[i] = sw.peers[last]
		sw.index[sw.peers[i].ID] = i
	}
	sw.peers = sw.peers[:last]
	delete(sw.index, removed.ID)
}

// sample returns up to limit peers starting from a deterministic offset
// derived from the excluded peer's ID, wrapping around and skipping the
// announcer itself.
func (sw *swarm) sample(exclude models.PeerID, limit int) (peers models.PeerList) {
	count := len(sw.peers)
	if count == 0 || limit <= 0 {
		return
	}

	h := fnv.New32a()
	h.Write(exclude[:])
	start := int(h.Sum32()) % count
	if start < 0 {
		start += count
	}

	for i := 0; i < count && len(peers) < limit; i++ {
		peer := sw.peers[(start+i)%count]
		if peer.ID == exclude {
			continue
		}
		peers = append(peers, peer)
	}
	return
}

type storageShard struct {
	sync.RWMutex
	swarms map[models.InfoHash]*swarm
}

// Storage is the map from info hash to swarm. It is sharded by the leading
// bytes of the info hash so distinct torrents proceed independently while
// every operation on a single torrent is serialized by its shard lock.
type Storage struct {
	shards []storageShard
}

// NewStorage creates a Storage with the given shard count. Counts below one
// fall back to a single shard.
func NewStorage(shards int) *Storage {
	if shards < 1 {
		shards = 1
	}
	s := &Storage{shards: make([]storageShard, shards)}
	for i := range s.shards {
		s.shards[i].swarms = make(map[models.InfoHash]*swarm)
	}
	return s
}

func (s *Storage) shardFor(ih models.InfoHash) *storageShard {
	idx := (uint32(ih[0])<<24 | uint32(ih[1])<<16 | uint32(ih[2])<<8 | uint32(ih[3])) % uint32(len(s.shards))
	return &s.shards[idx]
}

// AnnounceOutcome reports what an upsert did to the swarm, with the aggregate
// counts and the peer sample computed under the same lock as the mutation.
type AnnounceOutcome struct {
	Swarm models.Swarm
	Peers models.PeerList

	// CreatedTorrent is true when the upsert created the swarm entry.
	CreatedTorrent bool
	// CreatedPeer is true when no peer with this ID existed beforehand.
	CreatedPeer bool
	// Snatched is true when this announce incremented the completion count.
	Snatched bool
	// Removed is true for a stopped announce; the announcer is absent from
	// the swarm afterwards.
	Removed bool
	// WasSeeder is the seeding state of the replaced or removed peer, valid
	// when CreatedPeer is false.
	WasSeeder bool
}

// UpsertPeer inserts or replaces the peer keyed by its ID, maintains the
// completion counter, and returns the resulting aggregate plus up to limit
// other peers. A stopped event removes the peer instead.
func (s *Storage) UpsertPeer(ih models.InfoHash, peer *models.Peer, event int, limit int) (out AnnounceOutcome) {
	shard := s.shardFor(ih)
	shard.Lock()
	defer shard.Unlock()

	sw, ok := shard.swarms[ih]
	if !ok {
		if event == models.EventStopped {
			// nothing to remove and nothing worth creating
			out.CreatedPeer = true
			out.Removed = true
			return
		}
		sw = newSwarm()
		shard.swarms[ih] = sw
		out.CreatedTorrent = true
	}

	pos, exists := sw.index[peer.ID]
	if exists {
		out.WasSeeder = sw.peers[pos].Seeding()
	} else {
		out.CreatedPeer = true
	}

	if event == models.EventStopped {
		if exists {
			sw.remove(pos)
		}
		out.Removed = true
		out.Swarm = sw.aggregate()
		return
	}

	if event == models.EventCompleted && (!exists || !out.WasSeeder) {
		sw.completed++
		out.Snatched = true
	}

	if exists {
		if out.WasSeeder {
			sw.seeders--
		}
		sw.peers[pos] = *peer
	} else {
		sw.index[peer.ID] = len(sw.peers)
		sw.peers = append(sw.peers, *peer)
	}
	if peer.Seeding() {
		sw.seeders++
	}
	sw.emptySeen = false

	out.Swarm = sw.aggregate()
	out.Peers = sw.sample(peer.ID, limit)
	return
}

// PeersFor returns up to limit peers of the swarm, excluding the given ID.
func (s *Storage) PeersFor(ih models.InfoHash, exclude models.PeerID, limit int) models.PeerList {
	shard := s.shardFor(ih)
	shard.RLock()
	defer shard.RUnlock()

	sw, ok := shard.swarms[ih]
	if !ok {
		return nil
	}
	return sw.sample(exclude, limit)
}

// Aggregate returns the seeder, leecher and completion counts for a torrent,
// and whether the swarm entry exists. Unknown info hashes yield zeros.
func (s *Storage) Aggregate(ih models.InfoHash) (models.Swarm, bool) {
	shard := s.shardFor(ih)
	shard.RLock()
	defer shard.RUnlock()

	if sw, ok := shard.swarms[ih]; ok {
		return sw.aggregate(), true
	}
	return models.Swarm{}, false
}

// Len returns the number of swarm entries across all shards.
func (s *Storage) Len() (n int) {
	for i := range s.shards {
		shard := &s.shards[i]
		shard.RLock()
		n += len(shard.swarms)
		shard.RUnlock()
	}
	return
}

// All snapshots the aggregate of every swarm entry, for the admin surface.
func (s *Storage) All() map[models.InfoHash]models.Swarm {
	snapshot := make(map[models.InfoHash]models.Swarm)
	for i := range s.shards {
		shard := &s.shards[i]
		shard.RLock()
		for ih, sw := range shard.swarms {
			snapshot[ih] = sw.aggregate()
		}
		shard.RUnlock()
	}
	return snapshot
}

// ReapResult counts what one reaper sweep removed.
type ReapResult struct {
	Seeders  int
	Leechers int
	Torrents int
}

// Reap removes peers whose last announce predates now-timeout. Completion
// counts survive. Swarm entries that stay empty are kept unless purgeEmpty is
// set, and even then only deleted on the sweep after the one that found them
// empty.
func (s *Storage) Reap(now, timeout int64, purgeEmpty bool) (res ReapResult) {
	deadline := now - timeout
	for i := range s.shards {
		shard := &s.shards[i]
		shard.Lock()
		for ih, sw := range shard.swarms {
			for j := 0; j < len(sw.peers); {
				if sw.peers[j].LastAnnounce < deadline {
					if sw.peers[j].Seeding() {
						res.Seeders++
					} else {
						res.Leechers++
					}
					sw.remove(j)
					continue
				}
				j++
			}

			if len(sw.peers) == 0 && purgeEmpty {
				if sw.emptySeen {
					delete(shard.swarms, ih)
					res.Torrents++
					continue
				}
				sw.emptySeen = true
			}
		}
		shard.Unlock()
	}
	return
}
