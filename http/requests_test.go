// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/tracker/models"
)

func testServer(onProxy bool) *Server {
	cfg := config.DefaultConfig
	cfg.OnReverseProxy = onProxy
	return &Server{config: &cfg}
}

func announceRequest(t *testing.T, rawQuery, remoteAddr string) *http.Request {
	r, err := http.NewRequest("GET", "http://tracker.example/announce?"+rawQuery, nil)
	require.NoError(t, err)
	r.RemoteAddr = remoteAddr
	return r
}

func validQuery() string {
	return "info_hash=" + url.QueryEscape("01234567890123456789") +
		"&peer_id=" + url.QueryEscape("-TEST01-6wfG2wk6wWLc") +
		"&port=6881&left=100&uploaded=1&downloaded=2&event=started"
}

func TestNewAnnounceParsesFields(t *testing.T) {
	s := testServer(false)
	r := announceRequest(t, validQuery(), "1.1.1.1:49001")

	ann, err := s.newAnnounce(r, nil)
	require.NoError(t, err)

	assert.Equal(t, "01234567890123456789", string(ann.Infohash[:]))
	assert.Equal(t, "-TEST01-6wfG2wk6wWLc", ann.PeerID.String())
	assert.Equal(t, uint16(6881), ann.Port)
	assert.Equal(t, uint64(100), ann.Left)
	assert.Equal(t, uint64(1), ann.Uploaded)
	assert.Equal(t, uint64(2), ann.Downloaded)
	assert.Equal(t, models.EventStarted, ann.Event)
	assert.Equal(t, "1.1.1.1", ann.IP.String())
	assert.False(t, ann.Compact)
	assert.Equal(t, -1, ann.NumWant)
}

func TestNewAnnounceDefaultsCounters(t *testing.T) {
	s := testServer(false)
	r := announceRequest(t, "info_hash="+url.QueryEscape("01234567890123456789")+
		"&peer_id="+url.QueryEscape("-TEST01-6wfG2wk6wWLc")+"&port=6881", "1.1.1.1:49001")

	ann, err := s.newAnnounce(r, nil)
	require.NoError(t, err)
	assert.Zero(t, ann.Left)
	assert.Zero(t, ann.Uploaded)
	assert.Zero(t, ann.Downloaded)
	assert.Equal(t, models.EventNone, ann.Event)
}

func TestNewAnnounceRejectsBadLengths(t *testing.T) {
	s := testServer(false)

	r := announceRequest(t, "info_hash=short&peer_id="+url.QueryEscape("-TEST01-6wfG2wk6wWLc")+"&port=6881", "1.1.1.1:49001")
	_, err := s.newAnnounce(r, nil)
	assert.Equal(t, models.ErrMalformedRequest, err)

	r = announceRequest(t, "info_hash="+url.QueryEscape("01234567890123456789")+"&peer_id=short&port=6881", "1.1.1.1:49001")
	_, err = s.newAnnounce(r, nil)
	assert.Equal(t, models.ErrMalformedRequest, err)
}

func TestNewAnnounceRejectsBadPort(t *testing.T) {
	s := testServer(false)

	for _, port := range []string{"0", "65536", "-1", "x"} {
		r := announceRequest(t, "info_hash="+url.QueryEscape("01234567890123456789")+
			"&peer_id="+url.QueryEscape("-TEST01-6wfG2wk6wWLc")+"&port="+port, "1.1.1.1:49001")
		_, err := s.newAnnounce(r, nil)
		assert.Error(t, err, "port %s should be rejected", port)
	}
}

func TestNewAnnounceIgnoresClientIPParam(t *testing.T) {
	s := testServer(false)
	r := announceRequest(t, validQuery()+"&ip=9.9.9.9", "1.1.1.1:49001")

	ann, err := s.newAnnounce(r, nil)
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", ann.IP.String())
}

func TestNewAnnouncePasskeyFromPath(t *testing.T) {
	s := testServer(false)
	r := announceRequest(t, validQuery(), "1.1.1.1:49001")

	ann, err := s.newAnnounce(r, httprouter.Params{{Key: "passkey", Value: "somekey"}})
	require.NoError(t, err)
	assert.Equal(t, "somekey", ann.Passkey)
}

func TestRequestIPBehindProxy(t *testing.T) {
	s := testServer(true)

	r := announceRequest(t, validQuery(), "10.0.0.1:49001")
	r.Header.Set("X-Forwarded-For", "9.9.9.9, 2.2.2.2")
	ann, err := s.newAnnounce(r, nil)
	require.NoError(t, err)
	assert.Equal(t, "2.2.2.2", ann.IP.String())

	// header absent: the socket address is untrusted and the request fails
	r = announceRequest(t, validQuery(), "10.0.0.1:49001")
	_, err = s.newAnnounce(r, nil)
	assert.Equal(t, models.ErrMissingRemoteIP, err)

	// malformed entry
	r = announceRequest(t, validQuery(), "10.0.0.1:49001")
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	_, err = s.newAnnounce(r, nil)
	assert.Equal(t, models.ErrMissingRemoteIP, err)
}

func TestNewScrapeCollectsAllInfohashes(t *testing.T) {
	s := testServer(false)
	r := announceRequest(t,
		"info_hash="+url.QueryEscape("aaaaaaaaaaaaaaaaaaaa")+
			"&info_hash="+url.QueryEscape("bbbbbbbbbbbbbbbbbbbb"), "1.1.1.1:49001")

	scrape, err := s.newScrape(r, nil)
	require.NoError(t, err)
	require.Len(t, scrape.Infohashes, 2)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaa", string(scrape.Infohashes[0][:]))
	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbb", string(scrape.Infohashes[1][:]))
}

func TestNewScrapeRequiresInfohash(t *testing.T) {
	s := testServer(false)
	r := announceRequest(t, "", "1.1.1.1:49001")
	_, err := s.newScrape(r, nil)
	assert.Equal(t, models.ErrMalformedRequest, err)
}
