// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package api implements the administrative HTTP JSON surface: issuing
// authentication keys, maintaining the info-hash whitelist, and exposing
// statistics.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/tylerb/graceful"
	"golang.org/x/net/netutil"

	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/stats"
	"github.com/majestrate/kasumi/tracker"
)

// ResponseHandler is an HTTP handler that returns a status code.
type ResponseHandler func(http.ResponseWriter, *http.Request, httprouter.Params) (int, error)

// Server represents the administrative HTTP server.
type Server struct {
	config   *config.Config
	tracker  *tracker.Tracker
	listener net.Listener
	grace    *graceful.Server
	stopping bool
}

// NewServer returns a new API server for a given configuration and tracker.
func NewServer(cfg *config.Config, tkr *tracker.Tracker) *Server {
	return &Server{
		config:  cfg,
		tracker: tkr,
	}
}

// makeHandler wraps response handlers with timing, logging and stats.
func makeHandler(handler ResponseHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		httpCode, err := handler(w, r, p)
		duration := time.Since(start)

		var msg string
		if err != nil {
			msg = err.Error()
		} else if httpCode != http.StatusOK {
			msg = http.StatusText(httpCode)
		}

		if len(msg) > 0 {
			http.Error(w, msg, httpCode)
			stats.RecordEvent(stats.ErroredRequest)
		}

		if len(msg) > 0 || glog.V(2) {
			reqString := r.URL.Path + " " + r.RemoteAddr
			if len(msg) > 0 {
				glog.Errorf("[API - %9s] %s (%d - %s)", duration, reqString, httpCode, msg)
			} else {
				glog.Infof("[API - %9s] %s (%d)", duration, reqString, httpCode)
			}
		}

		stats.RecordEvent(stats.HandledRequest)
		stats.RecordTiming(stats.ResponseTime, duration)
	}
}

// requireToken rejects requests whose token parameter matches none of the
// configured admin tokens.
func (s *Server) requireToken(handler ResponseHandler) httprouter.Handle {
	return makeHandler(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
		token := r.URL.Query().Get("token")
		if token == "" || !s.tokenValid(token) {
			stats.RecordEvent(stats.ClientError)
			return http.StatusUnauthorized, nil
		}
		return handler(w, r, p)
	})
}

func (s *Server) tokenValid(token string) bool {
	for _, configured := range s.config.AdminTokens {
		if token == configured {
			return true
		}
	}
	return false
}

// newRouter returns a router with all the routes.
func newRouter(s *Server) *httprouter.Router {
	r := httprouter.New()

	r.POST("/api/key/:seconds", s.requireToken(s.putKey))
	r.DELETE("/api/key/:key", s.requireToken(s.delKey))
	r.POST("/api/whitelist/:infohash", s.requireToken(s.putWhitelist))
	r.DELETE("/api/whitelist/:infohash", s.requireToken(s.delWhitelist))
	r.GET("/api/stats", s.requireToken(s.stats))
	r.GET("/api/torrents", s.requireToken(s.listTorrents))
	r.GET("/api/torrent/:infohash", s.requireToken(s.getTorrent))
	r.GET("/check", makeHandler(s.check))
	return r
}

// Setup binds the listener.
func (s *Server) Setup() (err error) {
	s.listener, err = net.Listen("tcp", s.config.APIConfig.ListenAddr)
	if err == nil && s.config.APIConfig.ListenLimit > 0 {
		s.listener = netutil.LimitListener(s.listener, s.config.APIConfig.ListenLimit)
	}
	return
}

// Serve runs the API server, blocking until the server has shut down.
func (s *Server) Serve() {
	glog.V(0).Info("Starting API on ", s.config.APIConfig.ListenAddr)

	grace := &graceful.Server{
		Timeout: s.config.APIConfig.RequestTimeout.Duration,
		Server: &http.Server{
			Addr:         s.config.APIConfig.ListenAddr,
			Handler:      newRouter(s),
			ReadTimeout:  s.config.APIConfig.ReadTimeout.Duration,
			WriteTimeout: s.config.APIConfig.WriteTimeout.Duration,
		},
	}

	s.grace = grace
	grace.SetKeepAlivesEnabled(false)
	grace.ShutdownInitiated = func() { s.stopping = true }

	if err := grace.Serve(s.listener); err != nil {
		glog.Errorf("Failed to gracefully run API server: %s", err.Error())
		return
	}

	glog.Info("API server shut down cleanly")
}

// Stop cleanly shuts down the server.
func (s *Server) Stop() {
	if !s.stopping {
		s.grace.Stop(s.grace.Timeout)
	}
}
