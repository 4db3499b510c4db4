package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/subscriber"
)

type upsertCall struct {
	email  string
	status string
	fields map[string]any
}

type fakeAdapter struct {
	calls    []upsertCall
	results  map[string]*subscriber.SyncResult
	failures map[string]error
	groups   [][2]int64
	groupOK  bool
}

func (f *fakeAdapter) UpsertSubscriber(_ context.Context, email, status string, fields map[string]any) (*subscriber.SyncResult, error) {
	f.calls = append(f.calls, upsertCall{email: email, status: status, fields: fields})
	if err := f.failures[email]; err != nil {
		return nil, err
	}
	if res, ok := f.results[email]; ok {
		return res, nil
	}
	return &subscriber.SyncResult{}, nil
}

func (f *fakeAdapter) AssignToGroup(_ context.Context, subscriberID, groupID int64) bool {
	f.groups = append(f.groups, [2]int64{subscriberID, groupID})
	return f.groupOK
}

type fakeSource struct {
	rows   []entity.SubscriberRow
	err    error
	filter dto.SubscriberFilter
}

func (f *fakeSource) ListSubscribers(_ context.Context, filter dto.SubscriberFilter) ([]entity.SubscriberRow, error) {
	f.filter = filter
	return f.rows, f.err
}

func nipPtr(s string) *string { return &s }

func TestSyncRun_DedupesCaseInsensitively(t *testing.T) {
	adapter := &fakeAdapter{}
	svc := NewSyncService(nil, adapter, SyncOptions{})

	rows := []entity.SubscriberRow{
		{Email: "A@x.pl"},
		{Email: "a@x.pl"},
		{Email: "info@x.pl"},
		{Email: "b@y.pl"},
	}
	summary, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)

	require.Len(t, adapter.calls, 2)
	assert.Equal(t, "a@x.pl", adapter.calls[0].email)
	assert.Equal(t, "b@y.pl", adapter.calls[1].email)
	assert.Equal(t, SyncSummary{Total: 4, Invalid: 1, Duplicates: 1, Synced: 2}, summary)
}

func TestSyncRun_FieldsAndGroupAssignment(t *testing.T) {
	id := int64(77)
	adapter := &fakeAdapter{
		results: map[string]*subscriber.SyncResult{
			"jan@firma.pl": {SubscriberID: &id},
		},
		groupOK: true,
	}
	svc := NewSyncService(nil, adapter, SyncOptions{GroupID: 5, Status: "active"})

	summary, err := svc.Run(context.Background(), []entity.SubscriberRow{
		{Email: "jan@firma.pl", TaxID: nipPtr("521-345-67-89")},
		{Email: "ola@firma.pl"},
	})
	require.NoError(t, err)

	require.Len(t, adapter.calls, 2)
	assert.Equal(t, "active", adapter.calls[0].status)
	assert.Equal(t, map[string]any{"created_from_api": "aleo-scraper", "tax_id": "5213456789"}, adapter.calls[0].fields)
	assert.Equal(t, map[string]any{"created_from_api": "aleo-scraper"}, adapter.calls[1].fields)
	assert.Equal(t, [][2]int64{{77, 5}}, adapter.groups)
	assert.Equal(t, 1, summary.Grouped)
}

func TestSyncRun_NoGroupWithoutConfig(t *testing.T) {
	id := int64(77)
	adapter := &fakeAdapter{results: map[string]*subscriber.SyncResult{"jan@firma.pl": {SubscriberID: &id}}}
	svc := NewSyncService(nil, adapter, SyncOptions{})

	_, err := svc.Run(context.Background(), []entity.SubscriberRow{{Email: "jan@firma.pl"}})
	require.NoError(t, err)
	assert.Empty(t, adapter.groups)
}

func TestSyncRun_AdapterErrorDoesNotAbort(t *testing.T) {
	adapter := &fakeAdapter{failures: map[string]error{"a@x.pl": subscriber.ErrValidationRejected}}
	svc := NewSyncService(nil, adapter, SyncOptions{GroupID: 1})

	summary, err := svc.Run(context.Background(), []entity.SubscriberRow{{Email: "a@x.pl"}, {Email: "b@x.pl"}})
	require.NoError(t, err)
	assert.Len(t, adapter.calls, 2)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Synced)
	assert.Empty(t, adapter.groups)
}

func TestSyncRun_ConvertsDomainToASCII(t *testing.T) {
	adapter := &fakeAdapter{}
	svc := NewSyncService(nil, adapter, SyncOptions{})

	_, err := svc.Run(context.Background(), []entity.SubscriberRow{{Email: "jan@żółw.pl"}})
	require.NoError(t, err)
	require.Len(t, adapter.calls, 1)
	assert.Contains(t, adapter.calls[0].email, "@xn--")
}

func TestSyncRun_Pacing(t *testing.T) {
	adapter := &fakeAdapter{}
	svc := NewSyncService(nil, adapter, SyncOptions{Pace: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.Run(context.Background(), []entity.SubscriberRow{{Email: "a@x.pl"}, {Email: "b@x.pl"}, {Email: "c@x.pl"}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestSyncRun_Cancelled(t *testing.T) {
	adapter := &fakeAdapter{}
	svc := NewSyncService(nil, adapter, SyncOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, []entity.SubscriberRow{{Email: "a@x.pl"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, adapter.calls)
}

func TestSync_LoadsWithFilter(t *testing.T) {
	source := &fakeSource{rows: []entity.SubscriberRow{{Email: "a@x.pl"}}}
	adapter := &fakeAdapter{}
	svc := NewSyncService(source, adapter, SyncOptions{})

	filter := dto.SubscriberFilter{SearchCity: "Wrocław", Limit: 1}
	summary, err := svc.Sync(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, filter, source.filter)
	assert.Equal(t, 1, summary.Synced)
}

func TestSync_StorageFailureFailsFast(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	adapter := &fakeAdapter{}
	svc := NewSyncService(source, adapter, SyncOptions{})

	_, err := svc.Sync(context.Background(), dto.SubscriberFilter{})
	require.Error(t, err)
	assert.Empty(t, adapter.calls)
}
