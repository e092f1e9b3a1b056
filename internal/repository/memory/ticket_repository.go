// Package memory holds in-process repository implementations used for local
// development without Postgres and in tests. They honor the same conditional
// write rules as the Postgres repositories.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/repository"
)

// TicketRepository stores tickets in a map guarded by a mutex.
type TicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	now     func() time.Time
}

// NewTicketRepository returns an empty store.
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{
		tickets: make(map[string]*domain.Ticket),
		now:     time.Now,
	}
}

// WithClock overrides the timestamp source.
func (r *TicketRepository) WithClock(now func() time.Time) *TicketRepository {
	r.now = now
	return r
}

func (r *TicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := r.now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	ticket.Version = 1
	if ticket.ApprovalHistory == nil {
		ticket.ApprovalHistory = []domain.ApprovalEntry{}
	}
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *TicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return stored.Clone(), nil
}

func (r *TicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	ticket.UpdatedAt = r.now()
	cp := ticket.Clone()
	cp.CreatedAt = stored.CreatedAt
	cp.CreatedBy = stored.CreatedBy
	r.tickets[ticket.ID] = cp
	return nil
}

func (r *TicketRepository) ClaimApprover(_ context.Context, id, approverID string, expected domain.ApprovalStatus, level domain.ApprovalLevel) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if stored.ApprovalStatus != expected || stored.HasApproval(level) {
		return nil, repository.ErrLockUnavailable
	}
	if stored.CurrentApprover != nil && *stored.CurrentApprover != approverID {
		return nil, repository.ErrLockUnavailable
	}
	holder := approverID
	stored.CurrentApprover = &holder
	stored.Version++
	stored.UpdatedAt = r.now()
	return stored.Clone(), nil
}

func (r *TicketRepository) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := r.sorted()
	if filter.NewestFirst {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	var result []domain.Ticket
	for _, ticket := range ordered {
		if matches(ticket, filter) {
			result = append(result, *ticket.Clone())
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *TicketRepository) ListAwaitingApproval(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range r.sorted() {
		if ticket.Status == domain.TicketStatusRejected {
			continue
		}
		if ticket.ApprovalStatus == domain.ApprovalStatusPending ||
			ticket.ApprovalStatus == domain.ApprovalStatusLevel1Approved {
			result = append(result, *ticket.Clone())
		}
	}
	return result, nil
}

func (r *TicketRepository) ApprovalLevelStats(_ context.Context) ([]domain.ApprovalLevelStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type acc struct {
		count int64
		hours float64
	}
	buckets := map[domain.ApprovalLevel]*acc{}
	for _, ticket := range r.tickets {
		var level domain.ApprovalLevel
		switch ticket.ApprovalStatus {
		case domain.ApprovalStatusLevel1Approved:
			level = domain.ApprovalLevelManager
		case domain.ApprovalStatusLevel2Approved:
			level = domain.ApprovalLevelCTO
		default:
			continue
		}
		b, ok := buckets[level]
		if !ok {
			b = &acc{}
			buckets[level] = b
		}
		b.count++
		b.hours += ticket.UpdatedAt.Sub(ticket.CreatedAt).Hours()
	}

	var result []domain.ApprovalLevelStat
	for _, level := range []domain.ApprovalLevel{domain.ApprovalLevelManager, domain.ApprovalLevelCTO} {
		b, ok := buckets[level]
		if !ok {
			continue
		}
		result = append(result, domain.ApprovalLevelStat{
			ApprovalLevel: level,
			AverageHours:  b.hours / float64(b.count),
			Count:         b.count,
			Label:         domain.LevelLabel(level),
		})
	}
	return result, nil
}

func (r *TicketRepository) ApprovalTimeByType(_ context.Context, since time.Time) ([]domain.ApprovalTimeStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type acc struct {
		count         int64
		sum, max, min float64
	}
	buckets := map[string]*acc{}
	for _, ticket := range r.tickets {
		if ticket.Status != domain.TicketStatusApproved || ticket.CreatedAt.Before(since) {
			continue
		}
		end := ticket.CreatedAt
		if n := len(ticket.ApprovalHistory); n > 0 {
			end = ticket.ApprovalHistory[n-1].Timestamp
		}
		secs := end.Sub(ticket.CreatedAt).Seconds()
		b, ok := buckets[ticket.Type]
		if !ok {
			b = &acc{max: secs, min: secs}
			buckets[ticket.Type] = b
		}
		b.count++
		b.sum += secs
		b.max = math.Max(b.max, secs)
		b.min = math.Min(b.min, secs)
	}

	types := make([]string, 0, len(buckets))
	for t := range buckets {
		types = append(types, t)
	}
	sort.Strings(types)

	result := make([]domain.ApprovalTimeStat, 0, len(types))
	for _, t := range types {
		b := buckets[t]
		result = append(result, domain.ApprovalTimeStat{
			Type:     t,
			Count:    b.count,
			AvgHours: toHours(b.sum / float64(b.count)),
			MaxHours: toHours(b.max),
			MinHours: toHours(b.min),
		})
	}
	return result, nil
}

func (r *TicketRepository) sorted() []*domain.Ticket {
	list := make([]*domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		list = append(list, ticket)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func matches(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.CreatedBy != nil && ticket.CreatedBy != *filter.CreatedBy {
		return false
	}
	if len(filter.ApprovalStatuses) > 0 {
		found := false
		for _, status := range filter.ApprovalStatuses {
			if ticket.ApprovalStatus == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.ApprovalLevel != nil && ticket.ApprovalLevel != *filter.ApprovalLevel {
		return false
	}
	for _, status := range filter.ExcludeStatuses {
		if ticket.Status == status {
			return false
		}
	}
	if ticket.EscalationLevel < filter.MinEscalationLevel {
		return false
	}
	if filter.LockHeld && ticket.CurrentApprover == nil {
		return false
	}
	return true
}

func toHours(secs float64) int64 {
	return int64(math.Round(secs / 3600))
}

var _ repository.TicketRepository = (*TicketRepository)(nil)
