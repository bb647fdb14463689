// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package udp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"net"

	"github.com/majestrate/kasumi/clock"
)

// connectionIDSlot is the width of one issuance window in seconds. An ID is
// accepted for the slot it was minted in and the one after, so it lives for
// at least one slot and at most two.
const connectionIDSlot = 120

// ConnectionIDGenerator mints and checks the opaque 64-bit tokens that prove
// a UDP client can receive traffic at its claimed source address. No table of
// issued IDs is kept; an ID is a keyed MAC over (client ip, time slot)
// truncated to 8 bytes, so validation is recomputation.
type ConnectionIDGenerator struct {
	secret [32]byte
	clock  clock.Clock
}

// NewConnectionIDGenerator draws a fresh per-process secret.
func NewConnectionIDGenerator(clk clock.Clock) (*ConnectionIDGenerator, error) {
	g := &ConnectionIDGenerator{clock: clk}
	if _, err := io.ReadFull(rand.Reader, g.secret[:]); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *ConnectionIDGenerator) idForSlot(ip net.IP, slot int64) (id [8]byte) {
	// normalize so the 4 and 16 byte renderings of a v4 address agree
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	mac := hmac.New(sha256.New, g.secret[:])
	mac.Write(ip)
	var slotBytes [8]byte
	binary.BigEndian.PutUint64(slotBytes[:], uint64(slot))
	mac.Write(slotBytes[:])
	copy(id[:], mac.Sum(nil))
	return
}

// Generate mints the connection ID for a client address at the current slot.
func (g *ConnectionIDGenerator) Generate(ip net.IP) [8]byte {
	return g.idForSlot(ip, g.clock.Now()/connectionIDSlot)
}

// Matches reports whether an echoed ID was minted for this address in the
// current or previous slot.
func (g *ConnectionIDGenerator) Matches(id [8]byte, ip net.IP) bool {
	slot := g.clock.Now() / connectionIDSlot
	for _, s := range []int64{slot, slot - 1} {
		expected := g.idForSlot(ip, s)
		if hmac.Equal(expected[:], id[:]) {
			return true
		}
	}
	return false
}
