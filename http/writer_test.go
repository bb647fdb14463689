// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"net"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/majestrate/kasumi/tracker/models"
)

func TestWriteErrorIsBencodedFailureReason(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{rec}
	require.NoError(t, w.WriteError(models.ErrTorrentUnlisted))

	var decoded struct {
		FailureReason string `bencode:"failure reason"`
	}
	require.NoError(t, bencode.DecodeBytes(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "info hash is not whitelisted", decoded.FailureReason)
}

func TestWriteAnnounceCompact(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{rec}

	res := &models.AnnounceResponse{
		Complete:    1,
		Incomplete:  2,
		Interval:    1800,
		MinInterval: 900,
		Compact:     true,
		Peers: models.PeerList{
			{ID: models.PeerID{1}, IP: net.ParseIP("1.2.3.4"), Port: 6881},
			{ID: models.PeerID{2}, IP: net.ParseIP("2001:db8::1"), Port: 6882},
		},
	}
	require.NoError(t, w.WriteAnnounce(res))

	var decoded struct {
		Complete    int64  `bencode:"complete"`
		Incomplete  int64  `bencode:"incomplete"`
		Interval    int64  `bencode:"interval"`
		MinInterval int64  `bencode:"min interval"`
		Peers       string `bencode:"peers"`
		Peers6      string `bencode:"peers6"`
	}
	require.NoError(t, bencode.DecodeBytes(rec.Body.Bytes(), &decoded))

	assert.Equal(t, int64(1), decoded.Complete)
	assert.Equal(t, int64(2), decoded.Incomplete)
	assert.Equal(t, int64(1800), decoded.Interval)
	assert.Equal(t, int64(900), decoded.MinInterval)

	require.Len(t, decoded.Peers, 6)
	assert.Equal(t, []byte{1, 2, 3, 4, 0x1a, 0xe1}, []byte(decoded.Peers))
	require.Len(t, decoded.Peers6, 18)
	assert.Equal(t, net.ParseIP("2001:db8::1").To16(), net.IP(decoded.Peers6[:16]))
}

func TestCompactPeersRoundTrip(t *testing.T) {
	peers := make(models.PeerList, 0, 74)
	for i := 0; i < 74; i++ {
		peers = append(peers, models.Peer{
			IP:   net.IPv4(10, 0, byte(i/256), byte(i%256)).To4(),
			Port: uint16(6881 + i),
		})
	}

	v4, v6 := compactPeers(peers)
	require.Empty(t, v6)
	require.Len(t, v4, 74*6)

	for i := 0; i < 74; i++ {
		record := v4[i*6 : (i+1)*6]
		assert.Equal(t, []byte(peers[i].IP), record[:4])
		assert.Equal(t, peers[i].Port, uint16(record[4])<<8|uint16(record[5]))
	}
}

func TestWriteAnnounceNonCompact(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{rec}

	res := &models.AnnounceResponse{
		Interval:    1800,
		MinInterval: 900,
		Peers: models.PeerList{
			{ID: models.PeerID{'a'}, IP: net.ParseIP("1.2.3.4"), Port: 6881},
		},
	}
	require.NoError(t, w.WriteAnnounce(res))

	var decoded struct {
		Peers []struct {
			PeerID string `bencode:"peer id"`
			IP     string `bencode:"ip"`
			Port   int64  `bencode:"port"`
		} `bencode:"peers"`
	}
	require.NoError(t, bencode.DecodeBytes(rec.Body.Bytes(), &decoded))

	require.Len(t, decoded.Peers, 1)
	assert.Equal(t, "1.2.3.4", decoded.Peers[0].IP)
	assert.Equal(t, int64(6881), decoded.Peers[0].Port)
	assert.Equal(t, byte('a'), decoded.Peers[0].PeerID[0])
}

func TestWriteScrape(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &Writer{rec}

	ih := models.InfoHash{9}
	require.NoError(t, w.WriteScrape(&models.ScrapeResponse{
		Files: map[models.InfoHash]models.Swarm{
			ih: {Seeders: 4, Leechers: 2, Completed: 7},
		},
	}))

	var decoded struct {
		Files map[string]struct {
			Complete   int64 `bencode:"complete"`
			Incomplete int64 `bencode:"incomplete"`
			Downloaded int64 `bencode:"downloaded"`
		} `bencode:"files"`
	}
	require.NoError(t, bencode.DecodeBytes(rec.Body.Bytes(), &decoded))

	entry, ok := decoded.Files[string(ih[:])]
	require.True(t, ok)
	assert.Equal(t, int64(4), entry.Complete)
	assert.Equal(t, int64(2), entry.Incomplete)
	assert.Equal(t, int64(7), entry.Downloaded)
}
