// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package clock provides the process-wide current-time source, in whole
// seconds. Components take the clock as a value at construction so tests can
// substitute a stopped one.
package clock

import "time"

// Clock yields the current unix second.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

// System is the real clock. There is one; it is handed out at boot.
var System Clock = systemClock{}

// Stub is a settable clock for tests.
type Stub struct {
	Time int64
}

func (s *Stub) Now() int64 { return s.Time }

// Set moves the stub to the given unix second.
func (s *Stub) Set(t int64) { s.Time = t }

// Advance moves the stub forward by d seconds.
func (s *Stub) Advance(d int64) { s.Time += d }
