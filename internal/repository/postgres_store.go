package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// PostgresStore persists lifecycle state with pgx. Every Commit runs in a
// single transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const foreignKeyViolation = "23503"

const slaColumns = `ticket_id, policy_name, policy_classification, policy_priority,
        first_response_target_ns, resolution_target_ns, calendar, clock_started_at,
        accumulated_active_ns, paused, pause_reason, first_response_baseline_ns,
        first_responded_at, first_response_elapsed_ns, first_response_breached,
        resolution_breached, stopped, version, updated_at`

const recordColumns = `seq, id, ticket_id, kind, from_status, to_status, actor_id, actor_role, reason, details, occurred_at`

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, status, priority, classification, created_at, updated_at
        FROM tickets WHERE id=$1`
	var t domain.Ticket
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Status, &t.Priority, &t.Classification, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetSLAState(ctx context.Context, ticketID string) (*domain.SLAState, error) {
	query := `SELECT ` + slaColumns + ` FROM ticket_sla_states WHERE ticket_id=$1`
	var (
		st                                      domain.SLAState
		frTarget, resTarget, accrued, baseline int64
		frElapsed                               int64
	)
	err := s.pool.QueryRow(ctx, query, ticketID).Scan(
		&st.TicketID,
		&st.Policy.Name,
		&st.Policy.Classification,
		&st.Policy.Priority,
		&frTarget,
		&resTarget,
		&st.Policy.Calendar,
		&st.ClockStartedAt,
		&accrued,
		&st.Paused,
		&st.PauseReason,
		&baseline,
		&st.FirstRespondedAt,
		&frElapsed,
		&st.FirstResponseBreached,
		&st.ResolutionBreached,
		&st.Stopped,
		&st.Version,
		&st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Policy.FirstResponseTarget = time.Duration(frTarget)
	st.Policy.ResolutionTarget = time.Duration(resTarget)
	st.AccumulatedActive = time.Duration(accrued)
	st.FirstResponseBaseline = time.Duration(baseline)
	st.FirstResponseElapsed = time.Duration(frElapsed)
	return &st, nil
}

func (s *PostgresStore) ListTrackedTicketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticket_id FROM ticket_sla_states WHERE NOT stopped ORDER BY ticket_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) ListRecords(ctx context.Context, ticketID string, after Cursor, limit int) ([]domain.TransitionRecord, error) {
	query := `SELECT ` + recordColumns + `
        FROM ticket_transition_records
        WHERE ticket_id=$1 AND (occurred_at, seq) > ($2, $3)
        ORDER BY occurred_at, seq`
	args := []any{ticketID, after.OccurredAt, after.Seq}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransitionRecord
	for rows.Next() {
		var r domain.TransitionRecord
		var id uuid.UUID
		if err := rows.Scan(
			&r.Seq, &id, &r.TicketID, &r.Kind, &r.FromStatus, &r.ToStatus,
			&r.ActorID, &r.ActorRole, &r.Reason, &r.Details, &r.OccurredAt,
		); err != nil {
			return nil, err
		}
		r.ID = id.String()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Commit writes the mutation in one transaction. Guard misses roll back and
// surface as ErrConflict, ErrDuplicate or ErrNotFound.
func (s *PostgresStore) Commit(ctx context.Context, m Mutation) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if m.NewTicket != nil {
		if err = insertTicket(ctx, tx, m.NewTicket); err != nil {
			return err
		}
	}
	if m.NewStatus != "" {
		if err = updateStatus(ctx, tx, m); err != nil {
			return err
		}
	}
	if m.Classification != nil {
		if err = updateClassification(ctx, tx, m); err != nil {
			return err
		}
	}
	var version int64
	if m.SLA != nil {
		if m.CreateSLA {
			version, err = insertSLA(ctx, tx, m.SLA, m.At)
		} else {
			version, err = updateSLA(ctx, tx, m.SLA, m.At)
		}
		if err != nil {
			return err
		}
	}

	type assigned struct {
		id  string
		seq int64
	}
	ids := make([]assigned, len(m.Records))
	for i, r := range m.Records {
		ticketID := r.TicketID
		if ticketID == "" {
			ticketID = m.TicketID
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		details := r.Details
		if details == nil {
			details = map[string]any{}
		}
		const query = `
            INSERT INTO ticket_transition_records (id, ticket_id, kind, from_status, to_status, actor_id, actor_role, reason, details, occurred_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
            RETURNING seq`
		var seq int64
		if err = tx.QueryRow(ctx, query,
			id, ticketID, r.Kind, r.FromStatus, r.ToStatus, r.ActorID, r.ActorRole, r.Reason, details, r.OccurredAt,
		).Scan(&seq); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		ids[i] = assigned{id: id, seq: seq}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}

	if m.SLA != nil {
		m.SLA.Version = version
		m.SLA.UpdatedAt = m.At
	}
	for i, r := range m.Records {
		if r.TicketID == "" {
			r.TicketID = m.TicketID
		}
		r.ID, r.Seq = ids[i].id, ids[i].seq
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

func insertTicket(ctx context.Context, tx pgx.Tx, t *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, status, priority, classification, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := tx.Exec(ctx, query, t.ID, t.Status, t.Priority, t.Classification, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func updateStatus(ctx context.Context, tx pgx.Tx, m Mutation) error {
	const query = `UPDATE tickets SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`
	cmd, err := tx.Exec(ctx, query, m.NewStatus, m.At, m.TicketID, m.ExpectedStatus)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, m.TicketID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func updateClassification(ctx context.Context, tx pgx.Tx, m Mutation) error {
	const query = `UPDATE tickets SET classification=$1, priority=$2, updated_at=$3 WHERE id=$4`
	cmd, err := tx.Exec(ctx, query, m.Classification.Classification, m.Classification.Priority, m.At, m.TicketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertSLA(ctx context.Context, tx pgx.Tx, st *domain.SLAState, at time.Time) (int64, error) {
	query := `INSERT INTO ticket_sla_states (` + slaColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,1,$18)
        ON CONFLICT (ticket_id) DO NOTHING`
	cmd, err := tx.Exec(ctx, query, append(slaArgs(st), at)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if cmd.RowsAffected() == 0 {
		return 0, ErrDuplicate
	}
	return 1, nil
}

func updateSLA(ctx context.Context, tx pgx.Tx, st *domain.SLAState, at time.Time) (int64, error) {
	const query = `
        UPDATE ticket_sla_states SET
            policy_name=$2, policy_classification=$3, policy_priority=$4,
            first_response_target_ns=$5, resolution_target_ns=$6, calendar=$7,
            clock_started_at=$8, accumulated_active_ns=$9, paused=$10, pause_reason=$11,
            first_response_baseline_ns=$12, first_responded_at=$13, first_response_elapsed_ns=$14,
            first_response_breached=$15, resolution_breached=$16, stopped=$17,
            version=version+1, updated_at=$18
        WHERE ticket_id=$1 AND version=$19
        RETURNING version`
	args := append(slaArgs(st), at, st.Version)
	var version int64
	err := tx.QueryRow(ctx, query, args...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrConflict
	}
	return version, err
}

func slaArgs(st *domain.SLAState) []any {
	return []any{
		st.TicketID,
		st.Policy.Name,
		st.Policy.Classification,
		st.Policy.Priority,
		int64(st.Policy.FirstResponseTarget),
		int64(st.Policy.ResolutionTarget),
		st.Policy.Calendar,
		st.ClockStartedAt,
		int64(st.AccumulatedActive),
		st.Paused,
		st.PauseReason,
		int64(st.FirstResponseBaseline),
		st.FirstRespondedAt,
		int64(st.FirstResponseElapsed),
		st.FirstResponseBreached,
		st.ResolutionBreached,
		st.Stopped,
	}
}
