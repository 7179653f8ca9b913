package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/odyssey-erp/inventory-portal/internal/platform/kv"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service mencatat dan membaca log aktivitas yang bersifat append-only.
type Service struct {
	store  kv.Store
	origin string
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewService membuat service aktivitas baru. origin menandai instance klien yang mencatat.
func NewService(store kv.Store, origin string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, origin: origin, logger: logger, now: time.Now}
}

// Record appends an activity entry.
func (s *Service) Record(ctx context.Context, userID, action, details string) error {
	if s == nil {
		return errors.New("audit: service not initialised")
	}
	if userID == "" || action == "" {
		return errors.New("audit: activity requires user id and action")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, Activity{
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: s.now().UTC(),
		Origin:    s.origin,
	})
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("audit: encode activities: %w", err)
	}
	return s.store.Set(ctx, kv.KeyUserActivities, data)
}

// Timeline mengambil data aktivitas terbaru lebih dulu dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.Export(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	offset := (page - 1) * pageSize
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + pageSize
	hasNext := end < len(rows)
	if end > len(rows) {
		end = len(rows)
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows[offset:end], Paging: paging}, nil
}

// Export mengembalikan semua aktivitas yang cocok, terbaru lebih dulu.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Activity, error) {
	s.mu.Lock()
	entries, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rows := make([]Activity, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if filters.match(entries[i]) {
			rows = append(rows, entries[i])
		}
	}
	return rows, nil
}

func (s *Service) load(ctx context.Context) ([]Activity, error) {
	data, err := s.store.Get(ctx, kv.KeyUserActivities)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Activity
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("audit: decode %s: %w", kv.KeyUserActivities, err)
	}
	return entries, nil
}
