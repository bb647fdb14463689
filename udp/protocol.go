// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package udp

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/majestrate/kasumi/tracker/models"
)

// BEP 15 protocol magic, the fixed connection ID of a connect request.
const protocolMagic = 0x41727101980

// BEP 15 actions.
const (
	actionConnect = iota
	actionAnnounce
	actionScrape
	actionError
)

// Fixed packet sizes.
const (
	connectRequestSize  = 16
	connectResponseSize = 16
	announceRequestSize = 98
	scrapeRequestHeader = 16
)

// requestHeader is common to every packet after the first 16 bytes are known
// to exist: connection id (or magic), action, transaction id.
type requestHeader struct {
	ConnectionID  [8]byte
	Action        uint32
	TransactionID uint32
}

func parseHeader(packet []byte) (h requestHeader) {
	copy(h.ConnectionID[:], packet[0:8])
	h.Action = binary.BigEndian.Uint32(packet[8:12])
	h.TransactionID = binary.BigEndian.Uint32(packet[12:16])
	return
}

// announceRequest is the fixed 98-byte BEP 15 announce body.
type announceRequest struct {
	header     requestHeader
	Infohash   models.InfoHash
	PeerID     models.PeerID
	Downloaded uint64
	Left       uint64
	Uploaded   uint64
	Event      uint32
	IP         uint32
	Key        uint32
	NumWant    int32
	Port       uint16
}

func parseAnnounce(packet []byte) (*announceRequest, error) {
	if len(packet) < announceRequestSize {
		return nil, models.ErrMalformedRequest
	}
	req := &announceRequest{header: parseHeader(packet)}
	copy(req.Infohash[:], packet[16:36])
	copy(req.PeerID[:], packet[36:56])
	req.Downloaded = binary.BigEndian.Uint64(packet[56:64])
	req.Left = binary.BigEndian.Uint64(packet[64:72])
	req.Uploaded = binary.BigEndian.Uint64(packet[72:80])
	req.Event = binary.BigEndian.Uint32(packet[80:84])
	req.IP = binary.BigEndian.Uint32(packet[84:88])
	req.Key = binary.BigEndian.Uint32(packet[88:92])
	req.NumWant = int32(binary.BigEndian.Uint32(packet[92:96]))
	req.Port = binary.BigEndian.Uint16(packet[96:98])
	return req, nil
}

func parseScrape(packet []byte) (txid uint32, hashes []models.InfoHash, err error) {
	h := parseHeader(packet)
	txid = h.TransactionID
	body := packet[scrapeRequestHeader:]
	if len(body) == 0 || len(body)%20 != 0 {
		err = models.ErrMalformedRequest
		return
	}
	for len(body) > 0 {
		var ih models.InfoHash
		copy(ih[:], body[:20])
		hashes = append(hashes, ih)
		body = body[20:]
	}
	return
}

func writeConnectResponse(buf *bytes.Buffer, txid uint32, connID [8]byte) {
	writeUint32(buf, actionConnect)
	writeUint32(buf, txid)
	buf.Write(connID[:])
}

func writeAnnounceResponse(buf *bytes.Buffer, txid uint32, res *models.AnnounceResponse, v6 bool) {
	writeUint32(buf, actionAnnounce)
	writeUint32(buf, txid)
	writeUint32(buf, uint32(res.Interval))
	writeUint32(buf, uint32(res.Incomplete))
	writeUint32(buf, uint32(res.Complete))

	var port [2]byte
	for _, peer := range res.Peers {
		binary.BigEndian.PutUint16(port[:], peer.Port)
		if v6 {
			if ip := peer.IP.To16(); ip != nil && peer.IP.To4() == nil {
				buf.Write(ip)
				buf.Write(port[:])
			}
		} else {
			if ip := peer.IP.To4(); ip != nil {
				buf.Write(ip)
				buf.Write(port[:])
			}
		}
	}
}

func writeScrapeResponse(buf *bytes.Buffer, txid uint32, res *models.ScrapeResponse, order []models.InfoHash) {
	writeUint32(buf, actionScrape)
	writeUint32(buf, txid)
	for _, ih := range order {
		swarm := res.Files[ih]
		writeUint32(buf, uint32(swarm.Seeders))
		writeUint32(buf, uint32(swarm.Completed))
		writeUint32(buf, uint32(swarm.Leechers))
	}
}

func writeErrorResponse(buf *bytes.Buffer, txid uint32, err error) {
	writeUint32(buf, actionError)
	writeUint32(buf, txid)
	buf.WriteString(err.Error())
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}

// isIPv6 reports whether the request arrived over v6, which switches the
// announce response to 18-byte peer records.
func isIPv6(ip net.IP) bool {
	return ip.To4() == nil
}
