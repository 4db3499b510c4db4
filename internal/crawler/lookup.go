package crawler

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/browser"
	"github.com/octobees/aleo-sync/internal/directory"
	"github.com/octobees/aleo-sync/internal/entity"
)

// LookupResult is the outcome of a single-NIP search.
type LookupResult struct {
	// Record is the chosen match, nil when the search returned nothing.
	Record *entity.CompanyRecord
	// Candidates is the number of records on the first results page.
	Candidates int
}

// LookupTaxID searches the directory for nip, enriches the best match and
// persists it. The record whose NIP equals nip wins; otherwise the first
// result is taken.
func (c *Crawler) LookupTaxID(ctx context.Context, nip string) (LookupResult, error) {
	var result LookupResult
	q := directory.SearchQuery{Phrase: nip}

	var listing directory.Listing
	err := browser.WithPage(ctx, c.browser, func(page browser.Page) error {
		var err error
		listing, err = c.dir.FetchListing(ctx, page, q, 1)
		return err
	})
	if err != nil {
		return result, eris.Wrapf(err, "crawler: search nip %s", nip)
	}
	result.Candidates = len(listing.Records)
	if len(listing.Records) == 0 {
		return result, nil
	}

	rec := pickByTaxID(listing.Records, nip)
	if err := c.dir.Enrich(ctx, c.browser, rec); err != nil {
		c.log.Warn("enrich failed, keeping listing fields",
			zap.String("nip", nip),
			zap.String("detail_url", rec.DetailURL),
			zap.Error(err),
		)
	}
	c.finish([]*entity.CompanyRecord{rec}, uuid.New(), q)

	if c.store != nil {
		if _, err := c.store.UpsertCompanies(ctx, []*entity.CompanyRecord{rec}); err != nil {
			return result, eris.Wrapf(err, "crawler: persist nip %s", nip)
		}
	}
	result.Record = rec
	return result, nil
}

func pickByTaxID(records []*entity.CompanyRecord, nip string) *entity.CompanyRecord {
	for _, rec := range records {
		if rec.TaxID == nil {
			continue
		}
		if digits := normalizeTaxID(*rec.TaxID); digits == nip {
			return rec
		}
	}
	return records[0]
}
