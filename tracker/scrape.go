// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"github.com/majestrate/kasumi/stats"
	"github.com/majestrate/kasumi/tracker/models"
)

// HandleScrape encapsulates all the logic of handling a BitTorrent client's
// scrape without being coupled to any transport protocol. Info hashes with no
// swarm entry scrape as zeros.
func (tkr *Tracker) HandleScrape(scrape *models.Scrape, w Writer) (err error) {
	if len(scrape.Infohashes) == 0 {
		w.WriteError(models.ErrMalformedRequest)
		stats.RecordEvent(stats.ClientError)
		return nil
	}

	files := make(map[models.InfoHash]models.Swarm, len(scrape.Infohashes))
	for _, ih := range scrape.Infohashes {
		if err = tkr.authorize(scrape.Passkey, ih); err != nil {
			if models.IsPublicError(err) {
				w.WriteError(err)
				stats.RecordEvent(stats.ClientError)
				return nil
			}
			return err
		}
		files[ih], _ = tkr.Storage.Aggregate(ih)
	}

	stats.RecordEvent(stats.Scrape)
	return w.WriteScrape(&models.ScrapeResponse{
		Files: files,
	})
}
