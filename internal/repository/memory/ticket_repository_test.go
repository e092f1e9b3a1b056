package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/repository"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newRepo() (*TicketRepository, *fixedClock) {
	clock := &fixedClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	return NewTicketRepository().WithClock(clock.Now), clock
}

func createTicket(t *testing.T, repo *TicketRepository, creator, ticketType string) *domain.Ticket {
	t.Helper()

	ticket := domain.NewTicket(creator, "title", "description", ticketType, domain.TicketPriorityLow)
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func TestTicketRepositoryCreateAndGet(t *testing.T) {
	repo, _ := newRepo()
	ticket := createTicket(t, repo, "u1", "Hardware")

	require.NotEmpty(t, ticket.ID)
	require.Equal(t, int64(1), ticket.Version)

	got, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket.Title, got.Title)

	got.Title = "changed"
	again, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, "title", again.Title)

	_, err = repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestTicketRepositoryUpdateVersionCheck(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()
	ticket := createTicket(t, repo, "u1", "Hardware")

	first, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)

	first.Title = "first"
	require.NoError(t, repo.Update(ctx, first))
	require.Equal(t, int64(2), first.Version)

	second.Title = "second"
	require.ErrorIs(t, repo.Update(ctx, second), repository.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, "first", stored.Title)

	missing := &domain.Ticket{ID: "nope"}
	require.ErrorIs(t, repo.Update(ctx, missing), pgx.ErrNoRows)
}

func TestTicketRepositoryClaimApprover(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()
	ticket := createTicket(t, repo, "u1", "Hardware")

	claimed, err := repo.ClaimApprover(ctx, ticket.ID, "m1", domain.ApprovalStatusPending, domain.ApprovalLevelManager)
	require.NoError(t, err)
	require.Equal(t, "m1", *claimed.CurrentApprover)
	require.Equal(t, int64(2), claimed.Version)

	again, err := repo.ClaimApprover(ctx, ticket.ID, "m1", domain.ApprovalStatusPending, domain.ApprovalLevelManager)
	require.NoError(t, err)
	require.Equal(t, "m1", *again.CurrentApprover)

	_, err = repo.ClaimApprover(ctx, ticket.ID, "m2", domain.ApprovalStatusPending, domain.ApprovalLevelManager)
	require.ErrorIs(t, err, repository.ErrLockUnavailable)

	_, err = repo.ClaimApprover(ctx, ticket.ID, "c1", domain.ApprovalStatusLevel1Approved, domain.ApprovalLevelCTO)
	require.ErrorIs(t, err, repository.ErrLockUnavailable)

	_, err = repo.ClaimApprover(ctx, "missing", "m1", domain.ApprovalStatusPending, domain.ApprovalLevelManager)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestTicketRepositoryClaimApproverRace(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()
	ticket := createTicket(t, repo, "u1", "Hardware")

	const contenders = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := repo.ClaimApprover(ctx, ticket.ID, id, domain.ApprovalStatusPending, domain.ApprovalLevelManager)
			if err == nil {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
				return
			}
			if !errors.Is(err, repository.ErrLockUnavailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("manager-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	stored, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, winners[0], *stored.CurrentApprover)
}

func TestTicketRepositoryListWithFilter(t *testing.T) {
	ctx := context.Background()
	repo, clock := newRepo()

	var ids []string
	for i := 0; i < 5; i++ {
		creator := "u1"
		if i%2 == 1 {
			creator = "u2"
		}
		ids = append(ids, createTicket(t, repo, creator, "Hardware").ID)
		clock.Advance(time.Minute)
	}

	approved, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	approved.ApprovalStatus = domain.ApprovalStatusLevel1Approved
	approved.ApprovalLevel = domain.ApprovalLevelCTO
	require.NoError(t, repo.Update(ctx, approved))

	creator := "u1"
	mine, err := repo.ListWithFilter(ctx, repository.TicketFilter{CreatedBy: &creator})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	require.Equal(t, ids[0], mine[0].ID)

	level := domain.ApprovalLevelCTO
	ctoQueue, err := repo.ListWithFilter(ctx, repository.TicketFilter{
		ApprovalStatuses: []domain.ApprovalStatus{domain.ApprovalStatusLevel1Approved},
		ApprovalLevel:    &level,
	})
	require.NoError(t, err)
	require.Len(t, ctoQueue, 1)
	require.Equal(t, ids[0], ctoQueue[0].ID)

	page, err := repo.ListWithFilter(ctx, repository.TicketFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[1], page[0].ID)
	require.Equal(t, ids[2], page[1].ID)

	empty, err := repo.ListWithFilter(ctx, repository.TicketFilter{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTicketRepositoryListNewestFirstAndStuck(t *testing.T) {
	ctx := context.Background()
	repo, clock := newRepo()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createTicket(t, repo, "u1", "Hardware").ID)
		clock.Advance(time.Minute)
	}

	all, err := repo.ListWithFilter(ctx, repository.TicketFilter{NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	escalated, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	holder := "cto-1"
	escalated.CurrentApprover = &holder
	escalated.EscalationLevel = 2
	require.NoError(t, repo.Update(ctx, escalated))

	reminded, err := repo.GetByID(ctx, ids[1])
	require.NoError(t, err)
	reminded.EscalationLevel = 1
	require.NoError(t, repo.Update(ctx, reminded))

	stuck, err := repo.ListWithFilter(ctx, repository.TicketFilter{MinEscalationLevel: 2, LockHeld: true, NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, ids[0], stuck[0].ID)

	locked, err := repo.ListWithFilter(ctx, repository.TicketFilter{LockHeld: true})
	require.NoError(t, err)
	require.Len(t, locked, 1)

	touched, err := repo.ListWithFilter(ctx, repository.TicketFilter{MinEscalationLevel: 1})
	require.NoError(t, err)
	require.Len(t, touched, 2)
}

func TestTicketRepositoryListAwaitingApproval(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()

	pending := createTicket(t, repo, "u1", "Hardware")
	rejected := createTicket(t, repo, "u1", "Hardware")
	done := createTicket(t, repo, "u1", "Hardware")

	rejected.Status = domain.TicketStatusRejected
	rejected.ApprovalStatus = domain.ApprovalStatusRejected
	require.NoError(t, repo.Update(ctx, rejected))
	done.Status = domain.TicketStatusApproved
	done.ApprovalStatus = domain.ApprovalStatusLevel2Approved
	require.NoError(t, repo.Update(ctx, done))

	list, err := repo.ListAwaitingApproval(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, pending.ID, list[0].ID)
}

func TestTicketRepositoryStats(t *testing.T) {
	ctx := context.Background()
	repo, clock := newRepo()
	start := clock.Now()

	hw := createTicket(t, repo, "u1", "Hardware")
	sw := createTicket(t, repo, "u1", "Software")
	createTicket(t, repo, "u1", "Hardware")

	clock.Advance(2 * time.Hour)
	hw.Status = domain.TicketStatusApproved
	hw.ApprovalStatus = domain.ApprovalStatusLevel2Approved
	hw.ApprovalHistory = append(hw.ApprovalHistory, domain.ApprovalEntry{
		Level:     domain.ApprovalLevelCTO,
		Status:    domain.HistoryStatusApproved,
		Timestamp: start.Add(3 * time.Hour),
	})
	require.NoError(t, repo.Update(ctx, hw))

	sw.ApprovalStatus = domain.ApprovalStatusLevel1Approved
	require.NoError(t, repo.Update(ctx, sw))

	levels, err := repo.ApprovalLevelStats(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	require.Equal(t, domain.ApprovalLevelManager, levels[0].ApprovalLevel)
	require.Equal(t, "Manager Approval", levels[0].Label)
	require.Equal(t, int64(1), levels[0].Count)
	require.InDelta(t, 2.0, levels[0].AverageHours, 0.001)
	require.Equal(t, "CTO Approval", levels[1].Label)

	byType, err := repo.ApprovalTimeByType(ctx, start.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, "Hardware", byType[0].Type)
	require.Equal(t, int64(3), byType[0].AvgHours)
	require.Equal(t, int64(3), byType[0].MaxHours)
	require.Equal(t, int64(3), byType[0].MinHours)

	none, err := repo.ApprovalTimeByType(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, none)
}
