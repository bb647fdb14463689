// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"github.com/majestrate/kasumi/tracker/models"
)

// authorize decides admission for an announce or scrape against the
// configured mode. The key is checked before the whitelist.
//
//	mode            key?  whitelist?
//	public          no    no
//	listed          no    yes
//	private         yes   no
//	private-listed  yes   yes
func (tkr *Tracker) authorize(passkey string, ih models.InfoHash) error {
	if tkr.Config.Private() {
		if passkey == "" {
			return models.ErrMissingKey
		}
		if err := tkr.Keys.VerifyKey(passkey); err != nil {
			if models.IsPublicError(err) {
				return err
			}
			// backend trouble is never exposed; fail closed
			return models.ErrUnknownKey
		}
	}

	if tkr.Config.Listed() {
		if !tkr.Whitelist.Contains(ih) {
			return models.ErrTorrentUnlisted
		}
	}

	return nil
}
