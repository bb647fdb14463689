// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package kasumi

import (
	"flag"
	"net/http"
	_ "net/http/pprof"

	"github.com/golang/glog"
)

var profileAddr string

func init() {
	flag.StringVar(&profileAddr, "debug", "", "address to serve net/http/pprof on")
}

func debugBoot() {
	if profileAddr == "" {
		return
	}
	go func() {
		glog.V(0).Info("Starting pprof on ", profileAddr)
		if err := http.ListenAndServe(profileAddr, nil); err != nil {
			glog.Errorf("Failed to serve pprof: %s", err.Error())
		}
	}()
}

func debugShutdown() {}
