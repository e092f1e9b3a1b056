package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

const ticketColumns = `id, title, description, type, priority, status, approval_status, approval_level,
               current_approver, approval_history, rejection_reason, escalation_level, escalation_reason,
               last_approval_reminder, approval_timeout_hours, created_by, version, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, type, priority, status, approval_status, approval_level,
            approval_history, approval_timeout_hours, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, version, created_at, updated_at`
	history, err := encodeHistory(ticket.ApprovalHistory)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.ApprovalStatus,
		ticket.ApprovalLevel,
		history,
		ticket.ApprovalTimeoutHours,
		ticket.CreatedBy,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, type=$3, priority=$4, status=$5, approval_status=$6,
            approval_level=$7, current_approver=$8, approval_history=$9, rejection_reason=$10,
            escalation_level=$11, escalation_reason=$12, last_approval_reminder=$13,
            approval_timeout_hours=$14, version=version+1, updated_at=NOW()
        WHERE id=$15 AND version=$16
        RETURNING version, updated_at`
	if !validID(ticket.ID) {
		return pgx.ErrNoRows
	}
	history, err := encodeHistory(ticket.ApprovalHistory)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.ApprovalStatus,
		ticket.ApprovalLevel,
		ticket.CurrentApprover,
		history,
		ticket.RejectionReason,
		ticket.EscalationLevel,
		ticket.EscalationReason,
		ticket.LastApprovalReminder,
		ticket.ApprovalTimeoutHours,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missOrConflict(ctx, ticket.ID)
	}
	return err
}

func (r *ticketRepository) ClaimApprover(ctx context.Context, id, approverID string, expected domain.ApprovalStatus, level domain.ApprovalLevel) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `
        UPDATE tickets SET current_approver=$2, version=version+1, updated_at=NOW()
        WHERE id=$1
          AND approval_status=$3
          AND (current_approver IS NULL OR current_approver=$2)
          AND NOT approval_history @> jsonb_build_array(jsonb_build_object('level', $4::int, 'status', 'Approved'))
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id, approverID, expected, int(level)))
	if errors.Is(err, pgx.ErrNoRows) {
		if missErr := r.missOrConflict(ctx, id); errors.Is(missErr, pgx.ErrNoRows) {
			return nil, missErr
		}
		return nil, ErrLockUnavailable
	}
	return ticket, err
}

func (r *ticketRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return ErrVersionConflict
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if len(filter.ApprovalStatuses) > 0 {
		placeholders := make([]string, len(filter.ApprovalStatuses))
		for i, status := range filter.ApprovalStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("approval_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ApprovalLevel != nil {
		args = append(args, *filter.ApprovalLevel)
		clauses = append(clauses, fmt.Sprintf("approval_level=$%d", len(args)))
	}
	if len(filter.ExcludeStatuses) > 0 {
		placeholders := make([]string, len(filter.ExcludeStatuses))
		for i, status := range filter.ExcludeStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status NOT IN (%s)", strings.Join(placeholders, ",")))
	}

	if filter.MinEscalationLevel > 0 {
		args = append(args, filter.MinEscalationLevel)
		clauses = append(clauses, fmt.Sprintf("escalation_level>=$%d", len(args)))
	}
	if filter.LockHeld {
		clauses = append(clauses, "current_approver IS NOT NULL")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	order := "ASC"
	if filter.NewestFirst {
		order = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at %s, id %s LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), order, order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListAwaitingApproval(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE approval_status IN ($1, $2) AND status <> $3
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query,
		domain.ApprovalStatusPending,
		domain.ApprovalStatusLevel1Approved,
		domain.TicketStatusRejected,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ApprovalLevelStats(ctx context.Context) ([]domain.ApprovalLevelStat, error) {
	const query = `
        SELECT CASE approval_status WHEN $1 THEN 1 ELSE 2 END AS level,
               COUNT(*),
               AVG(EXTRACT(EPOCH FROM (updated_at - created_at)) / 3600.0)::float8
        FROM tickets
        WHERE approval_status IN ($1, $2)
        GROUP BY 1
        ORDER BY 1`
	rows, err := r.pool.Query(ctx, query, domain.ApprovalStatusLevel1Approved, domain.ApprovalStatusLevel2Approved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalLevelStat
	for rows.Next() {
		var stat domain.ApprovalLevelStat
		if err := rows.Scan(&stat.ApprovalLevel, &stat.Count, &stat.AverageHours); err != nil {
			return nil, err
		}
		stat.Label = domain.LevelLabel(stat.ApprovalLevel)
		result = append(result, stat)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ApprovalTimeByType(ctx context.Context, since time.Time) ([]domain.ApprovalTimeStat, error) {
	const query = `
        SELECT type, COUNT(*), AVG(secs)::float8, MAX(secs)::float8, MIN(secs)::float8
        FROM (
            SELECT type,
                   EXTRACT(EPOCH FROM (
                       COALESCE((approval_history->-1->>'timestamp')::timestamptz, created_at) - created_at
                   )) AS secs
            FROM tickets
            WHERE status=$1 AND created_at >= $2
        ) approvals
        GROUP BY type
        ORDER BY type`
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusApproved, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalTimeStat
	for rows.Next() {
		var (
			stat               domain.ApprovalTimeStat
			avg, maxVal, minVal float64
		)
		if err := rows.Scan(&stat.Type, &stat.Count, &avg, &maxVal, &minVal); err != nil {
			return nil, err
		}
		stat.AvgHours = secondsToHours(avg)
		stat.MaxHours = secondsToHours(maxVal)
		stat.MinHours = secondsToHours(minVal)
		result = append(result, stat)
	}
	return result, rows.Err()
}

// validID reports whether id can match a UUID primary key. Postgres rejects
// the cast of anything else instead of finding no row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func secondsToHours(secs float64) int64 {
	return int64(math.Round(secs / 3600))
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		history []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Type,
		&ticket.Priority,
		&ticket.Status,
		&ticket.ApprovalStatus,
		&ticket.ApprovalLevel,
		&ticket.CurrentApprover,
		&history,
		&ticket.RejectionReason,
		&ticket.EscalationLevel,
		&ticket.EscalationReason,
		&ticket.LastApprovalReminder,
		&ticket.ApprovalTimeoutHours,
		&ticket.CreatedBy,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entries, err := decodeHistory(history)
	if err != nil {
		return nil, err
	}
	ticket.ApprovalHistory = entries
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func encodeHistory(entries []domain.ApprovalEntry) ([]byte, error) {
	if entries == nil {
		entries = []domain.ApprovalEntry{}
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode approval history: %w", err)
	}
	return encoded, nil
}

func decodeHistory(raw []byte) ([]domain.ApprovalEntry, error) {
	entries := []domain.ApprovalEntry{}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode approval history: %w", err)
	}
	return entries, nil
}
