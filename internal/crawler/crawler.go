// Package crawler drives a directory search from the first results page to
// persisted, enriched company records.
package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/octobees/aleo-sync/internal/browser"
	"github.com/octobees/aleo-sync/internal/directory"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/normalize"
	"github.com/octobees/aleo-sync/internal/repository"
	"github.com/octobees/aleo-sync/internal/service/scoring"
)

// Source is written to every record's extra map.
const Source = "aleo"

// Store persists one page of records atomically.
type Store interface {
	UpsertCompanies(ctx context.Context, records []*entity.CompanyRecord) (repository.UpsertResult, error)
}

// Directory is the part of directory.Directory the crawler drives.
type Directory interface {
	FetchListing(ctx context.Context, page browser.Page, q directory.SearchQuery, pageNum int) (directory.Listing, error)
	Enrich(ctx context.Context, b browser.Browser, rec *entity.CompanyRecord) error
}

// Options tunes one crawl.
type Options struct {
	Query directory.SearchQuery
	// Target stops the crawl once this many unique records were found.
	// Zero means no limit.
	Target int
	// DetailDelay spaces consecutive profile visits.
	DetailDelay time.Duration
	// Workers above one enrich records of a page concurrently.
	Workers int
	RunID   uuid.UUID
}

// Result summarises a finished crawl.
type Result struct {
	RunID        uuid.UUID
	Pages        int
	Total        *int
	Records      []*entity.CompanyRecord
	EnrichFailed int
	Inserted     int
	Updated      int
}

// Crawler wires the directory, a browser and a store together.
type Crawler struct {
	dir     Directory
	browser browser.Browser
	store   Store
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Crawler. A nil store skips persistence.
func New(dir Directory, b browser.Browser, store Store) *Crawler {
	return &Crawler{
		dir:     dir,
		browser: b,
		store:   store,
		log:     zap.L().With(zap.String("component", "crawler")),
		now:     time.Now,
	}
}

// Run crawls pages 1..PageCount and stops early when a page brings no new
// records or the target is reached. A failing first page or a failing
// persist aborts the run; enrichment failures are logged and skipped.
func (c *Crawler) Run(ctx context.Context, opts Options) (Result, error) {
	result := Result{RunID: opts.RunID}
	if result.RunID == uuid.Nil {
		result.RunID = uuid.New()
	}
	log := c.log.With(zap.String("run_id", result.RunID.String()), zap.String("phrase", opts.Query.Phrase))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.DetailDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.DetailDelay), 1)
	}
	seen := newSeenSet()

	err := browser.WithPage(ctx, c.browser, func(listPage browser.Page) error {
		var pageCount *int
		for pageNum := 1; ; pageNum++ {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "crawler: cancelled")
			}

			listing, err := c.dir.FetchListing(ctx, listPage, opts.Query, pageNum)
			if err != nil {
				if pageNum == 1 {
					return eris.Wrap(err, "crawler: fetch first page")
				}
				log.Warn("listing page failed, stopping pagination", zap.Int("page", pageNum), zap.Error(err))
				return nil
			}
			result.Pages = pageNum
			if pageNum == 1 {
				pageCount = listing.PageCount
				result.Total = listing.Total
			}

			fresh := c.takeNew(listing.Records, seen, opts.Target, len(result.Records))
			if len(fresh) == 0 {
				log.Info("no new records on page, done", zap.Int("page", pageNum))
				return nil
			}

			failed, err := c.enrichAll(ctx, fresh, limiter, opts.Workers)
			result.EnrichFailed += failed
			if err != nil {
				return err
			}

			c.finish(fresh, result.RunID, opts.Query)

			if c.store != nil {
				res, err := c.store.UpsertCompanies(ctx, fresh)
				if err != nil {
					return eris.Wrapf(err, "crawler: persist page %d", pageNum)
				}
				result.Inserted += res.Inserted
				result.Updated += res.Updated
			}
			result.Records = append(result.Records, fresh...)

			log.Info("page done",
				zap.Int("page", pageNum),
				zap.Int("records", len(fresh)),
				zap.Int("collected", len(result.Records)),
			)

			if opts.Target > 0 && len(result.Records) >= opts.Target {
				return nil
			}
			if pageCount != nil && pageNum >= *pageCount {
				return nil
			}
		}
	})
	if err != nil {
		return result, err
	}

	log.Info("crawl finished",
		zap.Int("pages", result.Pages),
		zap.Int("records", len(result.Records)),
		zap.Int("enrich_failed", result.EnrichFailed),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// takeNew filters out URLs seen earlier in the run and caps the batch so the
// run never exceeds target.
func (c *Crawler) takeNew(records []*entity.CompanyRecord, seen *seenSet, target, collected int) []*entity.CompanyRecord {
	var fresh []*entity.CompanyRecord
	for _, rec := range records {
		if target > 0 && collected+len(fresh) >= target {
			break
		}
		if !seen.Add(rec.DetailURL) {
			continue
		}
		fresh = append(fresh, rec)
	}
	return fresh
}

func (c *Crawler) enrichAll(ctx context.Context, records []*entity.CompanyRecord, limiter *rate.Limiter, workers int) (int, error) {
	var failed atomic.Int64

	enrichOne := func(ctx context.Context, rec *entity.CompanyRecord) error {
		if err := limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "crawler: pacing")
		}
		if err := c.dir.Enrich(ctx, c.browser, rec); err != nil {
			failed.Add(1)
			c.log.Warn("enrich failed, keeping listing fields",
				zap.String("detail_url", rec.DetailURL),
				zap.Error(err),
			)
		}
		return nil
	}

	if workers <= 1 {
		for _, rec := range records {
			if err := enrichOne(ctx, rec); err != nil {
				return int(failed.Load()), err
			}
		}
		return int(failed.Load()), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range records {
		g.Go(func() error {
			return enrichOne(gctx, rec)
		})
	}
	err := g.Wait()
	return int(failed.Load()), err
}

// finish stamps provenance and normalises records before persistence.
func (c *Crawler) finish(records []*entity.CompanyRecord, runID uuid.UUID, q directory.SearchQuery) {
	scrapedAt := c.now().Unix()
	for _, rec := range records {
		rec.SearchPhrase = normalize.Text(q.Phrase)
		rec.SearchCity = normalize.City(q.City)
		rec.SearchRegistryType = normalize.Text(q.RegistryType)
		rec.Normalize()

		rec.SetExtra("run_id", runID.String())
		rec.SetExtra("source", Source)
		rec.SetExtra("scraped_at", scrapedAt)
		if rec.Phone != nil {
			if e164 := phoneE164(*rec.Phone); e164 != nil {
				rec.SetExtra("phone_e164", *e164)
			}
		}
		rec.SetExtra("lead_score", scoring.ComputeScore(scoring.FeaturesFromRecord(rec)).Total)
	}
}

// phoneE164 reads nine digit numbers as national and anything longer as
// already carrying a country code.
func phoneE164(digits string) *string {
	if len(digits) == 9 {
		return normalize.PhoneE164(digits, normalize.DefaultRegion)
	}
	return normalize.PhoneE164("+"+digits, normalize.DefaultRegion)
}

func normalizeTaxID(s string) string {
	if v := normalize.TaxID(s); v != nil {
		return *v
	}
	return ""
}

type seenSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{urls: make(map[string]struct{})}
}

// Add reports whether url was not seen before.
func (s *seenSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}
