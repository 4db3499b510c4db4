package service

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/normalize"
	"github.com/octobees/aleo-sync/internal/subscriber"
)

// CreatedFromAPI tags every subscriber this system creates.
const CreatedFromAPI = "aleo-scraper"

// SubscriberSource yields the contacts eligible for sync.
type SubscriberSource interface {
	ListSubscribers(ctx context.Context, filter dto.SubscriberFilter) ([]entity.SubscriberRow, error)
}

// SyncOptions tune a sync run.
type SyncOptions struct {
	// GroupID is the subscriber group to join; zero disables assignment.
	GroupID int64
	Status  string
	// Pace is the minimum spacing between records.
	Pace time.Duration
}

// SyncSummary reports what a run did with its input rows.
type SyncSummary struct {
	Total      int `json:"total"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
	Grouped    int `json:"grouped"`
}

// SyncService pushes stored contacts to the subscriber API.
type SyncService struct {
	source  SubscriberSource
	adapter subscriber.Adapter
	opts    SyncOptions
	log     *zap.Logger
}

// NewSyncService wires a sync orchestrator.
func NewSyncService(source SubscriberSource, adapter subscriber.Adapter, opts SyncOptions) *SyncService {
	return &SyncService{
		source:  source,
		adapter: adapter,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "sync")),
	}
}

// Sync loads rows matching filter and runs them through the adapter.
func (s *SyncService) Sync(ctx context.Context, filter dto.SubscriberFilter) (SyncSummary, error) {
	if s.source == nil {
		return SyncSummary{}, eris.New("sync: no subscriber source configured")
	}
	rows, err := s.source.ListSubscribers(ctx, filter)
	if err != nil {
		return SyncSummary{}, eris.Wrap(err, "sync: load subscribers")
	}
	s.log.Info("loaded subscribers",
		zap.Int("rows", len(rows)),
		zap.String("search_city", filter.SearchCity),
		zap.String("registry_type", filter.RegistryType),
		zap.String("city", filter.City),
		zap.Int("limit", filter.Limit),
	)
	return s.Run(ctx, rows)
}

// Run upserts every valid, distinct email in order. A failing record is
// logged and counted; it never stops the batch. Only cancellation does.
func (s *SyncService) Run(ctx context.Context, rows []entity.SubscriberRow) (SyncSummary, error) {
	summary := SyncSummary{Total: len(rows)}
	if s.adapter == nil {
		return summary, eris.New("sync: no subscriber adapter configured")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.opts.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(s.opts.Pace), 1)
	}

	seen := make(map[string]struct{}, len(rows))
	for idx, row := range rows {
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if !normalize.IsValidEmail(email) {
			summary.Invalid++
			s.log.Debug("skipping invalid or role email", zap.String("email", email))
			continue
		}
		if _, dup := seen[email]; dup {
			summary.Duplicates++
			continue
		}
		seen[email] = struct{}{}

		if err := limiter.Wait(ctx); err != nil {
			return summary, eris.Wrap(err, "sync: cancelled")
		}

		s.log.Info("upserting subscriber",
			zap.Int("index", idx+1),
			zap.Int("total", len(rows)),
			zap.String("email", email),
		)
		synced, grouped := s.syncOne(ctx, email, row.TaxID)
		if synced {
			summary.Synced++
		} else {
			summary.Failed++
		}
		if grouped {
			summary.Grouped++
		}
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "sync: cancelled")
		}
	}

	s.log.Info("sync finished",
		zap.Int("total", summary.Total),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed),
		zap.Int("invalid", summary.Invalid),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("grouped", summary.Grouped),
	)
	return summary, nil
}

func (s *SyncService) syncOne(ctx context.Context, email string, taxID *string) (synced, grouped bool) {
	res, err := s.adapter.UpsertSubscriber(ctx, normalize.ASCIIEmail(email), s.opts.Status, SubscriberFields(taxID))
	if err != nil {
		s.log.Error("subscriber upsert failed", zap.String("email", email), zap.Error(err))
		return false, false
	}
	if res == nil {
		return true, false
	}
	if len(res.Errors) > 0 {
		s.log.Warn("subscriber api reported errors", zap.String("email", email), zap.Any("errors", res.Errors))
	}
	if res.SubscriberID == nil || s.opts.GroupID == 0 {
		return true, false
	}
	return true, s.adapter.AssignToGroup(ctx, *res.SubscriberID, s.opts.GroupID)
}

// SubscriberFields builds the custom fields sent with every subscriber.
func SubscriberFields(taxID *string) map[string]any {
	fields := map[string]any{"created_from_api": CreatedFromAPI}
	if taxID == nil {
		return fields
	}
	if nip := normalize.TaxID(*taxID); nip != nil {
		fields["tax_id"] = *nip
	}
	return fields
}
