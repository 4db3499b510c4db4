package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/aleo-sync/internal/browser"
	"github.com/octobees/aleo-sync/internal/directory"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/repository"
)

type nopPage struct{}

func (nopPage) Load(context.Context, string, string) (string, error) { return "", nil }
func (nopPage) Close() error                                         { return nil }

type countingBrowser struct {
	mu     sync.Mutex
	opened int
}

func (b *countingBrowser) NewPage(context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	return nopPage{}, nil
}

type fakeDirectory struct {
	mu        sync.Mutex
	pages     map[int]directory.Listing
	pageErrs  map[int]error
	fetched   []int
	enriched  []string
	enrichErr map[string]error
}

func (d *fakeDirectory) FetchListing(_ context.Context, _ browser.Page, _ directory.SearchQuery, pageNum int) (directory.Listing, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetched = append(d.fetched, pageNum)
	if err := d.pageErrs[pageNum]; err != nil {
		return directory.Listing{}, err
	}
	listing := d.pages[pageNum]
	// Hand out copies so repeated pages look like fresh parses.
	out := directory.Listing{Total: listing.Total, PageCount: listing.PageCount}
	for _, rec := range listing.Records {
		cp := *rec
		out.Records = append(out.Records, &cp)
	}
	return out, nil
}

func (d *fakeDirectory) Enrich(_ context.Context, _ browser.Browser, rec *entity.CompanyRecord) error {
	d.mu.Lock()
	d.enriched = append(d.enriched, rec.DetailURL)
	err := d.enrichErr[rec.DetailURL]
	d.mu.Unlock()
	if err != nil {
		return err
	}
	phone := "+48 601 234 567"
	rec.Phone = &phone
	return nil
}

type fakeStore struct {
	batches [][]*entity.CompanyRecord
	err     error
}

func (s *fakeStore) UpsertCompanies(_ context.Context, records []*entity.CompanyRecord) (repository.UpsertResult, error) {
	if s.err != nil {
		return repository.UpsertResult{}, s.err
	}
	s.batches = append(s.batches, records)
	return repository.UpsertResult{Inserted: len(records), Total: len(records)}, nil
}

func records(urls ...string) []*entity.CompanyRecord {
	out := make([]*entity.CompanyRecord, 0, len(urls))
	for _, u := range urls {
		name := "Firma " + u
		out = append(out, &entity.CompanyRecord{Name: &name, DetailURL: "https://aleo.com/pl/firma/" + u})
	}
	return out
}

func intPtr(v int) *int {
	return &v
}

func TestRunEmptyFirstPage(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{1: {}}}
	store := &fakeStore{}
	b := &countingBrowser{}

	result, err := New(dir, b, store).Run(context.Background(), Options{Query: directory.SearchQuery{Phrase: "nic"}})
	require.NoError(t, err)

	assert.Empty(t, result.Records)
	assert.Empty(t, dir.enriched)
	assert.Empty(t, store.batches)
	assert.Equal(t, []int{1}, dir.fetched)
	assert.Equal(t, 1, b.opened, "only the listing page is opened")
}

func TestRunPaginatesAndDeduplicates(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{
		1: {Records: records("a", "b"), Total: intPtr(4), PageCount: intPtr(2)},
		2: {Records: records("b", "c", "d")},
		3: {Records: records("e")},
	}}
	store := &fakeStore{}

	result, err := New(dir, &countingBrowser{}, store).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, dir.fetched)
	require.Len(t, result.Records, 4)
	assert.Len(t, dir.enriched, 4)
	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 2)
	assert.Equal(t, 4, result.Inserted)
	assert.Equal(t, 4, *result.Total)
}

func TestRunStopsWhenPageBringsNothingNew(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{
		1: {Records: records("a", "b")},
		2: {Records: records("a", "b")},
		3: {Records: records("c")},
	}}

	result, err := New(dir, &countingBrowser{}, &fakeStore{}).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, dir.fetched)
	assert.Len(t, result.Records, 2)
}

func TestRunHonoursTarget(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{
		1: {Records: records("a", "b", "c"), PageCount: intPtr(5)},
		2: {Records: records("d", "e", "f")},
	}}
	store := &fakeStore{}

	result, err := New(dir, &countingBrowser{}, store).Run(context.Background(), Options{Target: 4})
	require.NoError(t, err)

	assert.Len(t, result.Records, 4)
	assert.Equal(t, []int{1, 2}, dir.fetched)
	assert.Len(t, dir.enriched, 4)
}

func TestRunContinuesAfterEnrichFailure(t *testing.T) {
	failing := "https://aleo.com/pl/firma/b"
	dir := &fakeDirectory{
		pages:     map[int]directory.Listing{1: {Records: records("a", "b", "c"), PageCount: intPtr(1)}},
		enrichErr: map[string]error{failing: browser.ErrPageTimeout},
	}
	store := &fakeStore{}

	result, err := New(dir, &countingBrowser{}, store).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.EnrichFailed)
	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 3)
	for _, rec := range store.batches[0] {
		if rec.DetailURL == failing {
			assert.Nil(t, rec.Phone)
			assert.NotNil(t, rec.Name)
		} else {
			assert.Equal(t, "48601234567", *rec.Phone)
		}
	}
}

func TestRunPropagatesStoreErrors(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{1: {Records: records("a")}}}
	store := &fakeStore{err: repository.ErrConstraintViolation}

	_, err := New(dir, &countingBrowser{}, store).Run(context.Background(), Options{})
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)
}

func TestRunFirstPageFailureIsFatal(t *testing.T) {
	dir := &fakeDirectory{pageErrs: map[int]error{1: errors.New("blocked")}}

	_, err := New(dir, &countingBrowser{}, &fakeStore{}).Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestRunLaterPageFailureStopsQuietly(t *testing.T) {
	dir := &fakeDirectory{
		pages:    map[int]directory.Listing{1: {Records: records("a"), PageCount: intPtr(3)}},
		pageErrs: map[int]error{2: browser.ErrPageTimeout},
	}

	result, err := New(dir, &countingBrowser{}, &fakeStore{}).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.Pages)
}

func TestRunStampsProvenance(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{1: {Records: records("a"), PageCount: intPtr(1)}}}
	runID := uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	c := New(dir, &countingBrowser{}, &fakeStore{})
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	result, err := c.Run(context.Background(), Options{
		Query: directory.SearchQuery{Phrase: "salon", City: "Wrocław", RegistryType: "CEIDG"},
		RunID: runID,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, runID, result.RunID)
	assert.Equal(t, "salon", *rec.SearchPhrase)
	assert.Equal(t, "Wrocław", *rec.SearchCity)
	assert.Equal(t, "CEIDG", *rec.SearchRegistryType)
	assert.Equal(t, runID.String(), rec.Extra["run_id"])
	assert.Equal(t, Source, rec.Extra["source"])
	assert.Equal(t, int64(1700000000), rec.Extra["scraped_at"])
	assert.Equal(t, "+48601234567", rec.Extra["phone_e164"])
	assert.IsType(t, 0, rec.Extra["lead_score"])
}

func TestRunWithWorkersEnrichesEveryRecord(t *testing.T) {
	var urls []string
	for i := 0; i < 12; i++ {
		urls = append(urls, fmt.Sprintf("f%02d", i))
	}
	dir := &fakeDirectory{pages: map[int]directory.Listing{1: {Records: records(urls...), PageCount: intPtr(1)}}}
	b := &countingBrowser{}
	store := &fakeStore{}

	result, err := New(dir, b, store).Run(context.Background(), Options{Workers: 4})
	require.NoError(t, err)

	assert.Len(t, result.Records, 12)
	assert.ElementsMatch(t, dir.enriched, func() []string {
		var out []string
		for _, rec := range result.Records {
			out = append(out, rec.DetailURL)
		}
		return out
	}())
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 12)
}

func TestRunPacesDetailVisits(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{1: {Records: records("a", "b", "c"), PageCount: intPtr(1)}}}

	start := time.Now()
	_, err := New(dir, &countingBrowser{}, nil).Run(context.Background(), Options{DetailDelay: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestRunCancelledContext(t *testing.T) {
	dir := &fakeDirectory{pages: map[int]directory.Listing{1: {Records: records("a")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(dir, &countingBrowser{}, &fakeStore{}).Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeenSet(t *testing.T) {
	s := newSeenSet()
	assert.True(t, s.Add("x"))
	assert.False(t, s.Add("x"))
	assert.True(t, s.Add("y"))
}
