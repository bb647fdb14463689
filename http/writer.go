// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"bytes"
	"encoding/binary"
	"net/http"

	"github.com/chihaya/bencode"

	"github.com/majestrate/kasumi/tracker/models"
)

// Writer implements the tracker.Writer interface for the HTTP protocol.
type Writer struct {
	http.ResponseWriter
}

// WriteError writes a bencode dict with a failure reason.
func (w *Writer) WriteError(err error) error {
	bencoder := bencode.NewEncoder(w)

	w.Header().Set("Content-Type", "text/plain")
	return bencoder.Encode(bencode.Dict{
		"failure reason": err.Error(),
	})
}

// WriteAnnounce writes a bencode dict representation of an AnnounceResponse.
func (w *Writer) WriteAnnounce(res *models.AnnounceResponse) error {
	dict := bencode.Dict{
		"complete":     res.Complete,
		"incomplete":   res.Incomplete,
		"interval":     res.Interval,
		"min interval": res.MinInterval,
	}

	if res.Compact {
		v4, v6 := compactPeers(res.Peers)
		dict["peers"] = v4
		if len(v6) > 0 {
			dict["peers6"] = v6
		}
	} else {
		dict["peers"] = peersList(res.Peers)
	}

	w.Header().Set("Content-Type", "text/plain")
	bencoder := bencode.NewEncoder(w)
	return bencoder.Encode(dict)
}

// WriteScrape writes a bencode dict representation of a ScrapeResponse.
func (w *Writer) WriteScrape(res *models.ScrapeResponse) error {
	dict := bencode.Dict{
		"files": filesDict(res.Files),
	}

	w.Header().Set("Content-Type", "text/plain")
	bencoder := bencode.NewEncoder(w)
	return bencoder.Encode(dict)
}

// compactPeers renders the BEP 23 byte strings: 6 bytes per IPv4 peer and 18
// bytes per IPv6 peer, big-endian port last.
func compactPeers(peers models.PeerList) ([]byte, []byte) {
	var v4, v6 bytes.Buffer
	var port [2]byte

	for _, peer := range peers {
		binary.BigEndian.PutUint16(port[:], peer.Port)
		if ip := peer.IP.To4(); ip != nil {
			v4.Write(ip)
			v4.Write(port[:])
		} else if ip := peer.IP.To16(); ip != nil {
			v6.Write(ip)
			v6.Write(port[:])
		}
	}
	return v4.Bytes(), v6.Bytes()
}

func peersList(peers models.PeerList) bencode.List {
	list := bencode.List{}
	for _, peer := range peers {
		list = append(list, bencode.Dict{
			"peer id": peer.ID.String(),
			"ip":      peer.IP.String(),
			"port":    int(peer.Port),
		})
	}
	return list
}

func filesDict(files map[models.InfoHash]models.Swarm) bencode.Dict {
	d := bencode.NewDict()
	for ih, swarm := range files {
		d[string(ih[:])] = bencode.Dict{
			"complete":   swarm.Seeders,
			"incomplete": swarm.Leechers,
			"downloaded": swarm.Completed,
		}
	}
	return d
}
