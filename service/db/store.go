package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/transfer"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the run journal: one row per transfer run plus its transition events.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Transfer is a journaled transfer run.
type Transfer struct {
	RunID             string     `json:"run_id"`
	Network           string     `json:"network"`
	FromAddress       *string    `json:"from_address,omitempty"`
	ToAddress         *string    `json:"to_address,omitempty"`
	Amount            *int64     `json:"amount,omitempty"`
	DryRun            bool       `json:"dry_run"`
	State             string     `json:"state"`
	AbortedAt         *string    `json:"aborted_at,omitempty"`
	ReferenceID       *string    `json:"reference_id,omitempty"`
	Settlement        *string    `json:"settlement,omitempty"`
	BlockHeight       *int64     `json:"block_height,omitempty"`
	EnergyUsage       *int64     `json:"energy_usage,omitempty"`
	NetUsage          *int64     `json:"net_usage,omitempty"`
	SenderBalance     *int64     `json:"sender_balance,omitempty"`
	ReceiverBalance   *int64     `json:"receiver_balance,omitempty"`
	BroadcastAttempts int32      `json:"broadcast_attempts"`
	Error             *string    `json:"error,omitempty"`
	Advisories        []string   `json:"advisories"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TransferEvent is a journaled state transition.
type TransferEvent struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Network     string    `json:"network"`
	State       string    `json:"state"`
	ReferenceID *string   `json:"reference_id,omitempty"`
	Message     *string   `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListTransfersParams contains filter and pagination parameters.
type ListTransfersParams struct {
	Network string // empty matches all networks
	Limit   int32
	Offset  int32
}

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
    run_id             TEXT PRIMARY KEY,
    network            TEXT NOT NULL,
    from_address       TEXT,
    to_address         TEXT,
    amount             BIGINT,
    dry_run            BOOLEAN NOT NULL DEFAULT FALSE,
    state              TEXT NOT NULL,
    aborted_at         TEXT,
    reference_id       TEXT,
    settlement         TEXT,
    block_height       BIGINT,
    energy_usage       BIGINT,
    net_usage          BIGINT,
    sender_balance     BIGINT,
    receiver_balance   BIGINT,
    broadcast_attempts INTEGER NOT NULL DEFAULT 0,
    error              TEXT,
    advisories         TEXT[] NOT NULL DEFAULT '{}',
    started_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at        TIMESTAMPTZ,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS transfers_network_started_idx ON transfers (network, started_at DESC);
CREATE INDEX IF NOT EXISTS transfers_reference_idx ON transfers (reference_id);

CREATE TABLE IF NOT EXISTS transfer_events (
    id           BIGSERIAL PRIMARY KEY,
    run_id       TEXT NOT NULL,
    network      TEXT NOT NULL,
    state        TEXT NOT NULL,
    reference_id TEXT,
    message      TEXT,
    occurred_at  TIMESTAMPTZ NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS transfer_events_run_idx ON transfer_events (run_id, id);
`

// EnsureSchema creates the journal tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, schema)
	s.metrics.RecordDBQuery("ensure_schema", "transfers", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Report journals a transition event and keeps the run row's state current.
// It satisfies transfer.Reporter.
func (s *Store) Report(ctx context.Context, event transfer.Event) error {
	ref := pgtextFromString(event.ReferenceID)
	msg := pgtextFromString(event.Message)

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfer_events (run_id, network, state, reference_id, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.RunID, event.Network, string(event.State), ref, msg, event.Timestamp,
	)
	s.metrics.RecordDBQuery("insert", "transfer_events", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to insert transfer event: %w", err)
	}

	start = time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO transfers (run_id, network, state, reference_id, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
		    network = EXCLUDED.network,
		    state = EXCLUDED.state,
		    reference_id = COALESCE(EXCLUDED.reference_id, transfers.reference_id),
		    updated_at = NOW()`,
		event.RunID, event.Network, string(event.State), ref, event.Timestamp,
	)
	s.metrics.RecordDBQuery("upsert_state", "transfers", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to update transfer state: %w", err)
	}
	return nil
}

// RecordResult stores the final summary of a run.
func (s *Store) RecordResult(ctx context.Context, r *transfer.Result) error {
	var (
		blockHeight, energy, netUsage pgtype.Int8
		receiverBalance               pgtype.Int8
		finishedAt                    pgtype.Timestamptz
	)
	if r.Receipt.BlockHeight != nil {
		blockHeight = pgtype.Int8{Int64: int64(*r.Receipt.BlockHeight), Valid: true}
	}
	if res := r.Receipt.Resources; res != nil {
		energy = pgtype.Int8{Int64: int64(res.ComputeUnits), Valid: true}
		netUsage = pgtype.Int8{Int64: int64(res.BandwidthUnits), Valid: true}
	}
	if r.ReceiverBalance != nil {
		receiverBalance = pgtype.Int8{Int64: int64(*r.ReceiverBalance), Valid: true}
	}
	if !r.FinishedAt.IsZero() {
		finishedAt = pgtype.Timestamptz{Time: r.FinishedAt, Valid: true}
	}
	settlement := pgtype.Text{}
	if r.Receipt.State != "" {
		settlement = pgtype.Text{String: string(r.Receipt.State), Valid: true}
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfers (
		    run_id, network, from_address, to_address, amount, dry_run, state, aborted_at,
		    reference_id, settlement, block_height, energy_usage, net_usage,
		    sender_balance, receiver_balance, broadcast_attempts, error, advisories,
		    started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (run_id) DO UPDATE SET
		    network = EXCLUDED.network,
		    from_address = EXCLUDED.from_address,
		    to_address = EXCLUDED.to_address,
		    amount = EXCLUDED.amount,
		    dry_run = EXCLUDED.dry_run,
		    state = EXCLUDED.state,
		    aborted_at = EXCLUDED.aborted_at,
		    reference_id = COALESCE(EXCLUDED.reference_id, transfers.reference_id),
		    settlement = EXCLUDED.settlement,
		    block_height = EXCLUDED.block_height,
		    energy_usage = EXCLUDED.energy_usage,
		    net_usage = EXCLUDED.net_usage,
		    sender_balance = EXCLUDED.sender_balance,
		    receiver_balance = EXCLUDED.receiver_balance,
		    broadcast_attempts = EXCLUDED.broadcast_attempts,
		    error = EXCLUDED.error,
		    advisories = EXCLUDED.advisories,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at,
		    updated_at = NOW()`,
		r.RunID,
		r.Network,
		pgtextFromString(r.From),
		pgtextFromString(r.To),
		int64(r.Amount),
		r.DryRun,
		string(r.State),
		pgtextFromString(string(r.AbortedAt)),
		pgtextFromString(r.ReferenceID),
		settlement,
		blockHeight,
		energy,
		netUsage,
		int64(r.SenderBalance),
		receiverBalance,
		int32(r.BroadcastAttempts),
		pgtextFromString(r.Error),
		r.AdvisoryMessages(),
		r.StartedAt,
		finishedAt,
	)
	s.metrics.RecordDBQuery("upsert_result", "transfers", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to record transfer result: %w", err)
	}
	return nil
}

const transferColumns = `run_id, network, from_address, to_address, amount, dry_run, state, aborted_at,
	reference_id, settlement, block_height, energy_usage, net_usage, sender_balance, receiver_balance,
	broadcast_attempts, error, advisories, started_at, finished_at, updated_at`

// GetTransfer retrieves a run by its ID.
func (s *Store) GetTransfer(ctx context.Context, runID string) (*Transfer, error) {
	return s.getTransfer(ctx, "get_transfer", `SELECT `+transferColumns+` FROM transfers WHERE run_id = $1`, runID)
}

// GetTransferByReference retrieves the most recent run for a transaction reference ID.
func (s *Store) GetTransferByReference(ctx context.Context, referenceID string) (*Transfer, error) {
	return s.getTransfer(ctx, "get_transfer_by_reference",
		`SELECT `+transferColumns+` FROM transfers WHERE reference_id = $1 ORDER BY started_at DESC LIMIT 1`,
		referenceID)
}

func (s *Store) getTransfer(ctx context.Context, op, query string, arg string) (*Transfer, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, query, arg)
	t, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		s.metrics.RecordDBQuery(op, "transfers", time.Since(start).Seconds(), nil)
		return nil, fmt.Errorf("transfer %s: %w", arg, ErrNotFound)
	}
	s.metrics.RecordDBQuery(op, "transfers", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransfers returns runs newest first.
func (s *Store) ListTransfers(ctx context.Context, params ListTransfersParams) ([]*Transfer, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
		WHERE ($1::text = '' OR network = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`,
		params.Network, limit, params.Offset,
	)
	if err != nil {
		s.metrics.RecordDBQuery("list_transfers", "transfers", time.Since(start).Seconds(), err)
		return nil, err
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	err = rows.Err()
	s.metrics.RecordDBQuery("list_transfers", "transfers", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// ListEvents returns the transitions of a run in the order they happened.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]*TransferEvent, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, network, state, reference_id, message, occurred_at, created_at
		FROM transfer_events
		WHERE run_id = $1
		ORDER BY id`, runID)
	if err != nil {
		s.metrics.RecordDBQuery("list_events", "transfer_events", time.Since(start).Seconds(), err)
		return nil, err
	}
	defer rows.Close()

	var events []*TransferEvent
	for rows.Next() {
		var (
			e            TransferEvent
			ref, message pgtype.Text
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Network, &e.State, &ref, &message, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ReferenceID = stringPtrFromPgtext(ref)
		e.Message = stringPtrFromPgtext(message)
		events = append(events, &e)
	}
	err = rows.Err()
	s.metrics.RecordDBQuery("list_events", "transfer_events", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Receipt rebuilds the settlement receipt stored for a run.
func (t *Transfer) Receipt() tron.Receipt {
	r := tron.Receipt{State: tron.StateUnknown}
	if t.ReferenceID != nil {
		r.ReferenceID = *t.ReferenceID
	}
	if t.Settlement != nil {
		r.State = tron.SettlementState(*t.Settlement)
	}
	if t.BlockHeight != nil {
		h := uint64(*t.BlockHeight)
		r.BlockHeight = &h
	}
	if t.EnergyUsage != nil || t.NetUsage != nil {
		r.Resources = &tron.ResourceUsage{}
		if t.EnergyUsage != nil {
			r.Resources.ComputeUnits = uint64(*t.EnergyUsage)
		}
		if t.NetUsage != nil {
			r.Resources.BandwidthUnits = uint64(*t.NetUsage)
		}
	}
	return r
}

// Helper functions to convert between pgx types and domain types

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var (
		t                                       Transfer
		from, to, abortedAt, ref, settle, errTx pgtype.Text
		amount, height, energy, netUsage        pgtype.Int8
		senderBal, receiverBal                  pgtype.Int8
		finishedAt                              pgtype.Timestamptz
	)
	err := row.Scan(
		&t.RunID, &t.Network, &from, &to, &amount, &t.DryRun, &t.State, &abortedAt,
		&ref, &settle, &height, &energy, &netUsage, &senderBal, &receiverBal,
		&t.BroadcastAttempts, &errTx, &t.Advisories, &t.StartedAt, &finishedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.FromAddress = stringPtrFromPgtext(from)
	t.ToAddress = stringPtrFromPgtext(to)
	t.AbortedAt = stringPtrFromPgtext(abortedAt)
	t.ReferenceID = stringPtrFromPgtext(ref)
	t.Settlement = stringPtrFromPgtext(settle)
	t.Error = stringPtrFromPgtext(errTx)
	t.Amount = int64PtrFromPgInt8(amount)
	t.BlockHeight = int64PtrFromPgInt8(height)
	t.EnergyUsage = int64PtrFromPgInt8(energy)
	t.NetUsage = int64PtrFromPgInt8(netUsage)
	t.SenderBalance = int64PtrFromPgInt8(senderBal)
	t.ReceiverBalance = int64PtrFromPgInt8(receiverBal)
	t.FinishedAt = timePtrFromPgTimestamptz(finishedAt)
	return &t, nil
}

func pgtextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func int64PtrFromPgInt8(i pgtype.Int8) *int64 {
	if !i.Valid {
		return nil
	}
	return &i.Int64
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
