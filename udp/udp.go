// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package udp implements a BitTorrent tracker over the UDP protocol as per
// BEP 15.
package udp

import (
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/pushrax/bufferpool"

	"github.com/majestrate/kasumi/clock"
	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/stats"
	"github.com/majestrate/kasumi/tracker"
	"github.com/majestrate/kasumi/tracker/models"
)

const (
	readBufferSize = 2048

	// enough pooled response buffers for a healthy amount of in-flight
	// requests; the largest response is an announce with 74 v6 peers
	responsePoolSize   = 256
	responseBufferSize = 2048
)

// Server represents a UDP serving torrent tracker.
type Server struct {
	config  *config.Config
	tracker *tracker.Tracker
	connIDs *ConnectionIDGenerator

	sock     *net.UDPConn
	pool     *bufferpool.BufferPool
	stopping bool
}

// NewServer returns a new UDP server for a given configuration and tracker.
func NewServer(cfg *config.Config, tkr *tracker.Tracker) *Server {
	return &Server{
		config:  cfg,
		tracker: tkr,
		pool:    bufferpool.New(responsePoolSize, responseBufferSize),
	}
}

// Setup binds the socket and establishes the connection-id secret.
func (s *Server) Setup() (err error) {
	if s.connIDs == nil {
		s.connIDs, err = NewConnectionIDGenerator(clock.System)
		if err != nil {
			return
		}
	}

	addr, err := net.ResolveUDPAddr("udp", s.config.UDPConfig.ListenAddr)
	if err != nil {
		return
	}

	s.sock, err = net.ListenUDP("udp", addr)
	if err != nil {
		return
	}

	if s.config.UDPConfig.ReadBufferSize > 0 {
		s.sock.SetReadBuffer(s.config.UDPConfig.ReadBufferSize)
	}
	return
}

// Serve pumps packets off the socket until Stop closes it.
func (s *Server) Serve() {
	glog.V(0).Info("Starting UDP on ", s.config.UDPConfig.ListenAddr)

	for !s.stopping {
		buf := make([]byte, readBufferSize)
		n, addr, err := s.sock.ReadFromUDP(buf)
		if err != nil {
			if s.stopping {
				break
			}
			glog.Errorf("Failed to read UDP packet: %s", err.Error())
			continue
		}

		go s.handlePacket(buf[:n], addr)
	}

	glog.Info("UDP server shut down cleanly")
}

// Stop cleanly shuts down the server.
func (s *Server) Stop() {
	s.stopping = true
	if s.sock != nil {
		s.sock.Close()
	}
}

// handlePacket dispatches one datagram. Anything shorter than a request
// header is dropped without a reply so the tracker cannot be used as an
// amplifier.
func (s *Server) handlePacket(packet []byte, addr *net.UDPAddr) {
	if len(packet) < connectRequestSize {
		return
	}

	start := time.Now()
	header := parseHeader(packet)
	writer := &Writer{
		sock:          s.sock,
		addr:          addr,
		pool:          s.pool,
		transactionID: header.TransactionID,
	}

	var err error
	switch header.Action {
	case actionConnect:
		err = s.handleConnect(header, addr, writer)

	case actionAnnounce:
		err = s.handleAnnounce(header, packet, addr, writer)

	case actionScrape:
		err = s.handleScrape(header, packet, addr, writer)

	default:
		// unknown action, nothing sensible to reply
		return
	}

	duration := time.Since(start)
	if err != nil {
		glog.Errorf("[UDP - %9s] %s (%s)", duration, addr, err)
		stats.RecordEvent(stats.ErroredRequest)
	} else if glog.V(2) {
		glog.Infof("[UDP - %9s] %s", duration, addr)
	}

	stats.RecordEvent(stats.HandledRequest)
	stats.RecordTiming(stats.ResponseTime, duration)
}

func (s *Server) handleConnect(header requestHeader, addr *net.UDPAddr, w *Writer) error {
	if parseMagic(header.ConnectionID) != protocolMagic {
		w.writeError(models.ErrProtocolMagic)
		stats.RecordEvent(stats.ClientError)
		return nil
	}

	w.writeConnect(s.connIDs.Generate(addr.IP))
	return nil
}

func (s *Server) handleAnnounce(header requestHeader, packet []byte, addr *net.UDPAddr, w *Writer) error {
	if !s.connIDs.Matches(header.ConnectionID, addr.IP) {
		w.writeError(models.ErrBadConnectionID)
		stats.RecordEvent(stats.ClientError)
		return nil
	}

	req, err := parseAnnounce(packet)
	if err != nil {
		w.writeError(err)
		stats.RecordEvent(stats.ClientError)
		return nil
	}
	if req.Port == 0 {
		w.writeError(models.ErrInvalidPort)
		stats.RecordEvent(stats.ClientError)
		return nil
	}

	numWant := -1
	if req.NumWant >= 0 {
		numWant = int(req.NumWant)
	}

	// The address field of the request is untrusted and ignored; peers are
	// stored under the socket's source address.
	ann := &models.Announce{
		Config:     s.config,
		Downloaded: req.Downloaded,
		Event:      int(req.Event),
		Infohash:   req.Infohash,
		IP:         addr.IP,
		Port:       req.Port,
		Left:       req.Left,
		NumWant:    numWant,
		PeerID:     req.PeerID,
		Uploaded:   req.Uploaded,
	}

	w.announceV6 = isIPv6(addr.IP)
	return s.tracker.HandleAnnounce(ann, w)
}

func (s *Server) handleScrape(header requestHeader, packet []byte, addr *net.UDPAddr, w *Writer) error {
	if !s.connIDs.Matches(header.ConnectionID, addr.IP) {
		w.writeError(models.ErrBadConnectionID)
		stats.RecordEvent(stats.ClientError)
		return nil
	}

	_, hashes, err := parseScrape(packet)
	if err != nil {
		w.writeError(err)
		stats.RecordEvent(stats.ClientError)
		return nil
	}

	w.scrapeOrder = hashes
	return s.tracker.HandleScrape(&models.Scrape{
		Config:     s.config,
		Infohashes: hashes,
	}, w)
}

// parseMagic reads the protocol magic from a connect request's leading bytes.
func parseMagic(connectionID [8]byte) uint64 {
	var v uint64
	for _, b := range connectionID {
		v = v<<8 | uint64(b)
	}
	return v
}
