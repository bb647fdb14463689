// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/majestrate/kasumi/stats"
	"github.com/majestrate/kasumi/tracker/models"
)

const jsonContentType = "application/json; charset=UTF-8"

func handleError(err error) (int, error) {
	if err == nil {
		return http.StatusOK, nil
	} else if _, ok := err.(models.NotFoundError); ok {
		stats.RecordEvent(stats.ClientError)
		return http.StatusNotFound, nil
	} else if _, ok := err.(models.ClientError); ok {
		stats.RecordEvent(stats.ClientError)
		return http.StatusBadRequest, nil
	}
	return http.StatusInternalServerError, err
}

func (s *Server) check(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	// Attempt to ping the backend so a dead database shows up here.
	if err := s.tracker.Backend.Ping(); err != nil {
		return handleError(err)
	}

	_, err := w.Write([]byte("STILL-ALIVE"))
	return handleError(err)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	w.Header().Set("Content-Type", jsonContentType)

	var err error
	var val interface{}
	query := r.URL.Query()

	stats.DefaultStats.GoRoutines = runtime.NumGoroutine()

	if _, flatten := query["flatten"]; flatten {
		val = stats.DefaultStats.Flattened()
	} else {
		val = stats.DefaultStats
	}

	if _, pretty := query["pretty"]; pretty {
		var buf []byte
		buf, err = json.MarshalIndent(val, "", "  ")

		if err == nil {
			_, err = w.Write(buf)
		}
	} else {
		err = json.NewEncoder(w).Encode(val)
	}

	return handleError(err)
}

// putKey issues a fresh authentication key valid for :seconds seconds.
func (s *Server) putKey(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	seconds, err := strconv.ParseInt(p.ByName("seconds"), 10, 64)
	if err != nil || seconds <= 0 {
		return http.StatusBadRequest, nil
	}

	key, err := s.tracker.Keys.NewKey(seconds)
	if err != nil {
		return http.StatusInternalServerError, err
	}

	w.Header().Set("Content-Type", jsonContentType)
	e := json.NewEncoder(w)
	return handleError(e.Encode(key))
}

// delKey revokes a key by literal value. Revoking an unknown key succeeds.
func (s *Server) delKey(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	if err := s.tracker.Keys.RevokeKey(p.ByName("key")); err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}

// putWhitelist admits an info hash. Re-adding is a no-op that succeeds.
func (s *Server) putWhitelist(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	ih, err := models.InfoHashFromHex(p.ByName("infohash"))
	if err != nil {
		return handleError(err)
	}

	if err := s.tracker.Whitelist.Add(ih); err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}

func (s *Server) delWhitelist(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	ih, err := models.InfoHashFromHex(p.ByName("infohash"))
	if err != nil {
		return handleError(err)
	}

	if err := s.tracker.Whitelist.Remove(ih); err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}

// torrentEntry is the JSON rendering of one swarm on the admin surface.
type torrentEntry struct {
	Infohash  string `json:"infohash"`
	Seeders   int    `json:"seeders"`
	Leechers  int    `json:"leechers"`
	Completed uint64 `json:"completed"`
}

func (s *Server) listTorrents(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	snapshot := s.tracker.Storage.All()
	torrents := make([]torrentEntry, 0, len(snapshot))
	for ih, swarm := range snapshot {
		torrents = append(torrents, torrentEntry{
			Infohash:  ih.String(),
			Seeders:   swarm.Seeders,
			Leechers:  swarm.Leechers,
			Completed: swarm.Completed,
		})
	}

	w.Header().Set("Content-Type", jsonContentType)
	e := json.NewEncoder(w)
	return handleError(e.Encode(torrents))
}

func (s *Server) getTorrent(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	ih, err := models.InfoHashFromHex(p.ByName("infohash"))
	if err != nil {
		return handleError(err)
	}

	swarm, err := s.tracker.FindTorrent(ih)
	if err != nil {
		return handleError(err)
	}

	w.Header().Set("Content-Type", jsonContentType)
	e := json.NewEncoder(w)
	return handleError(e.Encode(torrentEntry{
		Infohash:  ih.String(),
		Seeders:   swarm.Seeders,
		Leechers:  swarm.Leechers,
		Completed: swarm.Completed,
	}))
}
