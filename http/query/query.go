// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package query implements a single-purpose URL query parser. Unlike
// net/url.ParseQuery it keeps every repeated info_hash value, in request
// order, which scrape needs.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/majestrate/kasumi/tracker/models"
)

// Query represents a parsed URL.Query.
type Query struct {
	// Infohashes collects every info_hash value when more than one is
	// present; nil otherwise.
	Infohashes []string
	Params     map[string]string
}

// New parses a raw url query.
func New(rawQuery string) (*Query, error) {
	q := &Query{Params: make(map[string]string)}

	// tolerate being handed a whole URL
	if idx := strings.IndexByte(rawQuery, '?'); idx >= 0 {
		rawQuery = rawQuery[idx+1:]
	}

	var firstInfohash string
	for len(rawQuery) > 0 {
		segment := rawQuery
		if idx := strings.IndexAny(rawQuery, "&;"); idx >= 0 {
			segment = rawQuery[:idx]
			rawQuery = rawQuery[idx+1:]
		} else {
			rawQuery = ""
		}
		if segment == "" {
			continue
		}

		rawKey, rawVal := segment, ""
		if idx := strings.IndexByte(segment, '='); idx >= 0 {
			rawKey, rawVal = segment[:idx], segment[idx+1:]
		}

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, models.ErrMalformedRequest
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, models.ErrMalformedRequest
		}

		q.Params[key] = val

		if key == "info_hash" {
			if q.Infohashes != nil {
				q.Infohashes = append(q.Infohashes, val)
			} else if firstInfohash == "" {
				// The first info_hash isn't put into the slice until we
				// know there is more than one.
				firstInfohash = val
			} else {
				q.Infohashes = []string{firstInfohash, val}
			}
		}
	}

	return q, nil
}

// Uint64 is a helper to obtain a uint of any length from a Query. After being
// called, you can safely cast the uint64 to your desired length.
func (q *Query) Uint64(key string) (uint64, error) {
	str, exists := q.Params[key]
	if !exists {
		return 0, models.ErrMalformedRequest
	}

	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, models.ErrMalformedRequest
	}

	return val, nil
}

// Uint64Default is Uint64 with a fallback for absent keys.
func (q *Query) Uint64Default(key string, fallback uint64) (uint64, error) {
	if _, exists := q.Params[key]; !exists {
		return fallback, nil
	}
	return q.Uint64(key)
}
