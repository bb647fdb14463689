// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package models implements the common data types used throughout a BitTorrent
// tracker.
package models

import (
	"encoding/hex"
	"net"

	"github.com/majestrate/kasumi/config"
)

var (
	// ErrMalformedRequest is returned when a request does not contain the
	// required parameters needed to create a model.
	ErrMalformedRequest = ClientError("malformed request")

	// ErrInvalidPort is returned when a request carries a port outside
	// 1..65535.
	ErrInvalidPort = ClientError("invalid port")

	// ErrTorrentDNE is returned when a torrent does not exist.
	ErrTorrentDNE = NotFoundError("torrent does not exist")

	// ErrMissingKey is returned when the tracker runs in a private mode and
	// the announce carries no key.
	ErrMissingKey = ClientError("authentication key required")

	// ErrUnknownKey is returned when a key is not on record.
	ErrUnknownKey = NotFoundError("authentication key not found")

	// ErrExpiredKey is returned when a key is past its validity window.
	ErrExpiredKey = ClientError("authentication key expired")

	// ErrTorrentUnlisted is returned in listed modes for an info hash that is
	// not whitelisted.
	ErrTorrentUnlisted = ClientError("info hash is not whitelisted")

	// ErrMissingRemoteIP is returned when the tracker sits behind a reverse
	// proxy and no usable forwarded address is present.
	ErrMissingRemoteIP = ClientError("missing or invalid remote ip")

	// ErrBadConnectionID is returned on the UDP path when a packet echoes a
	// connection ID the tracker did not issue for that address recently.
	// The spelling matches what clients in the wild already expect.
	ErrBadConnectionID = ProtocolError("Connection ID missmatch")

	// ErrProtocolMagic is returned when a UDP connect packet does not open
	// with the BEP 15 protocol magic.
	ErrProtocolMagic = ProtocolError("bad protocol magic")
)

type ClientError string
type NotFoundError ClientError
type ProtocolError ClientError

func (e ClientError) Error() string   { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e ProtocolError) Error() string { return string(e) }

// IsPublicError determines whether an error should be propagated to the client.
func IsPublicError(err error) bool {
	_, cl := err.(ClientError)
	_, nf := err.(NotFoundError)
	_, pc := err.(ProtocolError)
	return cl || nf || pc
}

// InfoHash is the 20-byte identifier of a torrent. Comparison is bytewise.
type InfoHash [20]byte

// InfoHashFromBytes copies a raw 20-byte string into an InfoHash.
func InfoHashFromBytes(buf []byte) (ih InfoHash, err error) {
	if len(buf) != 20 {
		err = ErrMalformedRequest
		return
	}
	copy(ih[:], buf)
	return
}

// InfoHashFromHex parses the 40-char hex rendering used on the admin surface.
func InfoHashFromHex(s string) (ih InfoHash, err error) {
	if len(s) != 40 {
		err = ErrMalformedRequest
		return
	}
	var buf []byte
	buf, err = hex.DecodeString(s)
	if err != nil {
		err = ErrMalformedRequest
		return
	}
	copy(ih[:], buf)
	return
}

// String renders an InfoHash as 40 lowercase hex characters.
func (ih InfoHash) String() string {
	return hex.EncodeToString(ih[:])
}

// PeerID identifies a client instance within one swarm.
type PeerID [20]byte

// PeerIDFromBytes copies a raw 20-byte string into a PeerID.
func PeerIDFromBytes(buf []byte) (id PeerID, err error) {
	if len(buf) != 20 {
		err = ErrMalformedRequest
		return
	}
	copy(id[:], buf)
	return
}

func (id PeerID) String() string {
	return string(id[:])
}

// Announce events, in BEP 15 numbering.
const (
	EventNone = iota
	EventCompleted
	EventStarted
	EventStopped
)

// EventFromString maps the HTTP event parameter onto the shared numbering.
// Unrecognized values behave as an unmarked announce.
func EventFromString(event string) int {
	switch event {
	case "started":
		return EventStarted
	case "completed":
		return EventCompleted
	case "stopped":
		return EventStopped
	default:
		return EventNone
	}
}

// Peer represents a participant in a BitTorrent swarm.
type Peer struct {
	ID         PeerID `json:"id"`
	IP         net.IP `json:"ip"`
	Port       uint16 `json:"port"`
	Uploaded   uint64 `json:"uploaded"`
	Downloaded uint64 `json:"downloaded"`
	Left       uint64 `json:"left"`

	// LastAnnounce is the unix second of the most recent announce.
	LastAnnounce int64 `json:"lastAnnounce"`
}

// Seeding reports whether the peer has nothing left to download.
func (p *Peer) Seeding() bool {
	return p.Left == 0
}

// PeerList represents a list of peers returned from an announce.
type PeerList []Peer

// Swarm is the aggregate view of one torrent's peers.
type Swarm struct {
	Seeders   int    `json:"complete"`
	Leechers  int    `json:"incomplete"`
	Completed uint64 `json:"downloaded"`
}

// Announce is an Announce by a Peer.
type Announce struct {
	Config *config.Config `json:"config"`

	Compact    bool     `json:"compact"`
	Downloaded uint64   `json:"downloaded"`
	Event      int      `json:"event"`
	Infohash   InfoHash `json:"infohash"`
	IP         net.IP   `json:"ip"`
	Port       uint16   `json:"port"`
	Left       uint64   `json:"left"`
	NumWant    int      `json:"numwant"`
	Passkey    string   `json:"passkey"`
	PeerID     PeerID   `json:"peer_id"`
	Uploaded   uint64   `json:"uploaded"`
}

// BuildPeer creates the Peer representation of an Announce. The address is
// always the resolver-determined one, never a client-supplied field.
func (a *Announce) BuildPeer(now int64) *Peer {
	return &Peer{
		ID:           a.PeerID,
		IP:           a.IP,
		Port:         a.Port,
		Uploaded:     a.Uploaded,
		Downloaded:   a.Downloaded,
		Left:         a.Left,
		LastAnnounce: now,
	}
}

// WantedPeers clamps the requested peer count into [0, max], falling back to
// the configured default when the request did not ask.
func (a *Announce) WantedPeers(fallback, max int) int {
	numWant := a.NumWant
	if numWant < 0 {
		numWant = fallback
	}
	if numWant > max {
		numWant = max
	}
	return numWant
}

// AnnounceResponse contains the information needed to fulfill an announce.
type AnnounceResponse struct {
	Announce              *Announce
	Complete, Incomplete  int
	Interval, MinInterval int64
	Peers                 PeerList

	Compact bool
}

// Scrape is a Scrape by a Peer.
type Scrape struct {
	Config *config.Config `json:"config"`

	Passkey    string
	Infohashes []InfoHash
}

// ScrapeResponse contains the information needed to fulfill a scrape.
type ScrapeResponse struct {
	Files map[InfoHash]Swarm
}

// Key is a time-bounded authentication key handed out by the admin surface.
type Key struct {
	Key        string `json:"key" db:"key"`
	ValidUntil int64  `json:"valid_until" db:"valid_until"`
}

// Expired reports whether the key is past its validity window.
func (k *Key) Expired(now int64) bool {
	return now > k.ValidUntil
}
