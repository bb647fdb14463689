// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"time"

	"github.com/majestrate/kasumi/stats"
	"github.com/majestrate/kasumi/tracker/models"
)

// HandleAnnounce encapsulates all the logic of handling a BitTorrent client's
// announce without being coupled to any transport protocol.
func (tkr *Tracker) HandleAnnounce(ann *models.Announce, w Writer) (err error) {
	if err = tkr.authorize(ann.Passkey, ann.Infohash); err != nil {
		if models.IsPublicError(err) {
			w.WriteError(err)
			stats.RecordEvent(stats.ClientError)
			return nil
		}
		return err
	}

	limit := ann.WantedPeers(tkr.Config.NumWantFallback, tkr.Config.NumWantMax)
	peer := ann.BuildPeer(tkr.clock.Now())
	out := tkr.Storage.UpsertPeer(ann.Infohash, peer, ann.Event, limit)

	recordAnnounceEvents(ann, peer, &out)

	return w.WriteAnnounce(&models.AnnounceResponse{
		Announce:    ann,
		Complete:    out.Swarm.Seeders,
		Incomplete:  out.Swarm.Leechers,
		Interval:    int64(tkr.Config.Announce.Duration / time.Second),
		MinInterval: int64(tkr.Config.MinAnnounce.Duration / time.Second),
		Peers:       out.Peers,
		Compact:     ann.Compact,
	})
}

func recordAnnounceEvents(ann *models.Announce, peer *models.Peer, out *AnnounceOutcome) {
	if ann.IP.To4() != nil {
		stats.RecordEvent(stats.AnnounceIPv4)
	} else {
		stats.RecordEvent(stats.AnnounceIPv6)
	}

	if out.CreatedTorrent {
		stats.RecordEvent(stats.NewTorrent)
	}

	switch {
	case out.Removed:
		if !out.CreatedPeer {
			if out.WasSeeder {
				stats.RecordPeerEvent(stats.DeletedSeed)
			} else {
				stats.RecordPeerEvent(stats.DeletedLeech)
			}
		}

	case out.CreatedPeer:
		if peer.Seeding() {
			stats.RecordPeerEvent(stats.NewSeed)
		} else {
			stats.RecordPeerEvent(stats.NewLeech)
		}

	case out.Snatched:
		stats.RecordPeerEvent(stats.Completed)
	}
}
