// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/majestrate/kasumi/http/query"
	"github.com/majestrate/kasumi/tracker/models"
)

// newAnnounce parses an HTTP request and generates a models.Announce.
func (s *Server) newAnnounce(r *http.Request, p httprouter.Params) (*models.Announce, error) {
	q, err := query.New(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	infohash, exists := q.Params["info_hash"]
	if !exists {
		return nil, models.ErrMalformedRequest
	}
	ih, err := models.InfoHashFromBytes([]byte(infohash))
	if err != nil {
		return nil, err
	}

	peerID, exists := q.Params["peer_id"]
	if !exists {
		return nil, models.ErrMalformedRequest
	}
	pid, err := models.PeerIDFromBytes([]byte(peerID))
	if err != nil {
		return nil, err
	}

	port, err := q.Uint64("port")
	if err != nil {
		return nil, models.ErrMalformedRequest
	}
	if port == 0 || port > 65535 {
		return nil, models.ErrInvalidPort
	}

	left, err := q.Uint64Default("left", 0)
	if err != nil {
		return nil, models.ErrMalformedRequest
	}

	downloaded, err := q.Uint64Default("downloaded", 0)
	if err != nil {
		return nil, models.ErrMalformedRequest
	}

	uploaded, err := q.Uint64Default("uploaded", 0)
	if err != nil {
		return nil, models.ErrMalformedRequest
	}

	compact, err := q.Uint64Default("compact", 0)
	if err != nil || compact > 1 {
		return nil, models.ErrMalformedRequest
	}

	numWant := -1
	if numWantStr, exists := q.Params["numwant"]; exists {
		parsed, err := strconv.Atoi(numWantStr)
		if err != nil {
			return nil, models.ErrMalformedRequest
		}
		if parsed < 0 {
			parsed = 0
		}
		numWant = parsed
	}

	ip, err := s.requestIP(r)
	if err != nil {
		return nil, err
	}

	return &models.Announce{
		Config:     s.config,
		Compact:    compact == 1,
		Downloaded: downloaded,
		Event:      models.EventFromString(q.Params["event"]),
		Infohash:   ih,
		IP:         ip,
		Port:       uint16(port),
		Left:       left,
		NumWant:    numWant,
		Passkey:    p.ByName("passkey"),
		PeerID:     pid,
		Uploaded:   uploaded,
	}, nil
}

// newScrape parses an HTTP request and generates a models.Scrape.
func (s *Server) newScrape(r *http.Request, p httprouter.Params) (*models.Scrape, error) {
	q, err := query.New(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}

	if q.Infohashes == nil {
		if _, exists := q.Params["info_hash"]; !exists {
			// There aren't any infohashes.
			return nil, models.ErrMalformedRequest
		}
		q.Infohashes = []string{q.Params["info_hash"]}
	}

	hashes := make([]models.InfoHash, 0, len(q.Infohashes))
	for _, infohash := range q.Infohashes {
		ih, err := models.InfoHashFromBytes([]byte(infohash))
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, ih)
	}

	return &models.Scrape{
		Config: s.config,

		Passkey:    p.ByName("passkey"),
		Infohashes: hashes,
	}, nil
}

// requestIP resolves the client address the announce will be stored under.
// Behind a reverse proxy the socket address belongs to the proxy and only the
// right-most forwarded-for entry is trusted.
func (s *Server) requestIP(r *http.Request) (net.IP, error) {
	if s.config.OnReverseProxy {
		forwarded := r.Header.Get(s.config.RealIPHeader)
		if forwarded == "" {
			return nil, models.ErrMissingRemoteIP
		}
		entries := strings.Split(forwarded, ",")
		ip := net.ParseIP(strings.TrimSpace(entries[len(entries)-1]))
		if ip == nil {
			return nil, models.ErrMissingRemoteIP
		}
		return ip, nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, models.ErrMissingRemoteIP
	}
	return ip, nil
}
