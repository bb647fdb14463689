// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package udp

import (
	"net"

	"github.com/pushrax/bufferpool"

	"github.com/majestrate/kasumi/tracker/models"
)

// Writer implements the tracker.Writer interface for the UDP protocol.
// Responses are serialized into a pooled buffer and sent as one datagram.
type Writer struct {
	sock *net.UDPConn
	addr *net.UDPAddr
	pool *bufferpool.BufferPool

	transactionID uint32

	// announceV6 switches announce responses to 18-byte peer records.
	announceV6 bool

	// scrapeOrder preserves the request's info hash order, which the wire
	// format depends on.
	scrapeOrder []models.InfoHash
}

// WriteError sends a BEP 15 error packet carrying the request's transaction
// id.
func (w *Writer) WriteError(err error) error {
	return w.writeError(err)
}

func (w *Writer) writeError(err error) error {
	buf := w.pool.Take()
	defer w.pool.Give(buf)
	writeErrorResponse(buf, w.transactionID, err)
	_, sendErr := w.sock.WriteToUDP(buf.Bytes(), w.addr)
	return sendErr
}

func (w *Writer) writeConnect(connID [8]byte) error {
	buf := w.pool.Take()
	defer w.pool.Give(buf)
	writeConnectResponse(buf, w.transactionID, connID)
	_, err := w.sock.WriteToUDP(buf.Bytes(), w.addr)
	return err
}

// WriteAnnounce sends a BEP 15 announce response.
func (w *Writer) WriteAnnounce(res *models.AnnounceResponse) error {
	buf := w.pool.Take()
	defer w.pool.Give(buf)
	writeAnnounceResponse(buf, w.transactionID, res, w.announceV6)
	_, err := w.sock.WriteToUDP(buf.Bytes(), w.addr)
	return err
}

// WriteScrape sends a BEP 15 scrape response with one 12-byte entry per
// requested info hash, in request order.
func (w *Writer) WriteScrape(res *models.ScrapeResponse) error {
	buf := w.pool.Take()
	defer w.pool.Give(buf)
	writeScrapeResponse(buf, w.transactionID, res, w.scrapeOrder)
	_, err := w.sock.WriteToUDP(buf.Bytes(), w.addr)
	return err
}
