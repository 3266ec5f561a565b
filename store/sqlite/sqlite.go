/*
Package sqlite provides a SQLite-backed implementation of the lease storage
interfaces. In production, the same patterns apply to PostgreSQL - only minor
SQL dialect differences.

INTERFACES IMPLEMENTED:
  lease.Store:   Contracts, payments, penalties, leave, associations
  lease.TxStore: Transactional composition via WithTx

KEY TABLES:
  contracts:        Lease agreements with the running due-date window
  battery_contracts: Optional battery sub-contracts (balances only)
  payments:         Immutable payment records snapshotting the window
  penalties:        One row per (contract, missed day); escalation rewrites
                    the row in place
  penalty_payments: Immutable manual payments against penalties
  leave_requests:   Absence requests; approved ones exempt covered days
  associations:     Driver<->vehicle links carrying the swap-lock flag

INDEXES:
  - idx_penalties_unique_day: at most one penalty per (contract, missed day);
    this is what makes the backfill pass idempotent under races
  - idx_penalties_missed_type: the escalation pass scans by (missed day, type)
  - idx_payments_contract_day: compliance checks for a single day
  - idx_payments_contract_created: the daily payment cap count

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole body, so transactional helpers must not re-enter the public methods.
  SQLite is opened with WAL for better read concurrency and crash recovery.

ENCODING:
  Monetary amounts are stored as decimal TEXT, instants as UTC RFC3339 TEXT
  with a fixed-width nanosecond fraction (lexicographically ordered),
  calendar days as YYYY-MM-DD TEXT.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - lease/store.go: Interface definitions
  - lease/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lease-engine/lease"
)

// Store implements lease.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent (each pooled
	// connection would otherwise get its own) and matches the store's
	// serialized write model.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Contracts
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		total_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		per_payment_amount TEXT NOT NULL,
		date_concerned TEXT NOT NULL DEFAULT '',
		date_limit TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		battery_contract_id TEXT,
		association_id TEXT,
		leave_days_total INTEGER NOT NULL DEFAULT 0,
		leave_days_used INTEGER NOT NULL DEFAULT 0,
		leave_days_remaining INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_status
		ON contracts(status);

	-- Battery sub-contracts (balances only)
	CREATE TABLE IF NOT EXISTS battery_contracts (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Payments (immutable window snapshots)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		contract_id TEXT NOT NULL,
		amount_moto TEXT NOT NULL,
		amount_battery TEXT NOT NULL,
		amount_total TEXT NOT NULL,
		date_concerned TEXT NOT NULL,
		date_limit TEXT NOT NULL,
		method TEXT,
		transaction_ref TEXT,
		status TEXT NOT NULL,
		recorded_by TEXT,
		created_at TEXT NOT NULL
	);

	-- For the daily payment cap (count by creation instant)
	CREATE INDEX IF NOT EXISTS idx_payments_contract_created
		ON payments(contract_id, created_at);

	-- For compliance checks on a single covered day
	CREATE INDEX IF NOT EXISTS idx_payments_contract_day
		ON payments(contract_id, date_concerned);

	-- Penalties
	CREATE TABLE IF NOT EXISTS penalties (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		missed_date TEXT NOT NULL,
		reference_deadline TEXT NOT NULL DEFAULT '',
		payment_due_at TEXT,
		motive TEXT,
		description TEXT,
		cancel_justification TEXT,
		cancelled_by TEXT,
		cancelled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one penalty per (contract, missed day). The backfill
	-- pass relies on this to stay idempotent when two runs race.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_penalties_unique_day
		ON penalties(contract_id, missed_date);

	-- The escalation pass scans yesterday's light penalties
	CREATE INDEX IF NOT EXISTS idx_penalties_missed_type
		ON penalties(missed_date, type);

	-- Swap-lock reconciliation scans a contract's open penalties
	CREATE INDEX IF NOT EXISTS idx_penalties_contract_status
		ON penalties(contract_id, status);

	-- Penalty payments (immutable)
	CREATE TABLE IF NOT EXISTS penalty_payments (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		penalty_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT,
		transaction_ref TEXT,
		paid_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_penalty_payments_penalty
		ON penalty_payments(penalty_id);

	-- Leave requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		day_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		motive TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Leave exemption lookups filter approved requests by covered range
	CREATE INDEX IF NOT EXISTS idx_leave_contract_status
		ON leave_requests(contract_id, status);

	-- Associations (driver<->vehicle)
	CREATE TABLE IF NOT EXISTS associations (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		driver_id TEXT,
		vehicle_id TEXT,
		swap_locked BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_associations_contract
		ON associations(contract_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is the common surface of *sql.DB and *sql.Tx the helpers run on.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `id, reference, total_amount, paid_amount, remaining_amount,
	per_payment_amount, date_concerned, date_limit, status,
	battery_contract_id, association_id,
	leave_days_total, leave_days_used, leave_days_remaining,
	created_at, updated_at`

func (s *Store) GetContract(ctx context.Context, id lease.ContractID) (*lease.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getContract(ctx, s.db, id)
}

func getContract(ctx context.Context, q querier, id lease.ContractID) (*lease.Contract, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE id = ?", id)

	var (
		c                          lease.Contract
		total, paid, rem, per      string
		concerned, limit           string
		batteryID, assocID         sql.NullString
		createdAt, updatedAt       string
	)
	err := row.Scan(&c.ID, &c.Reference, &total, &paid, &rem, &per,
		&concerned, &limit, &c.Status, &batteryID, &assocID,
		&c.LeaveDaysTotal, &c.LeaveDaysUsed, &c.LeaveDaysRemaining,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, lease.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	c.TotalAmount = mustDecimal(total)
	c.PaidAmount = mustDecimal(paid)
	c.RemainingAmount = mustDecimal(rem)
	c.PerPaymentAmount = mustDecimal(per)
	c.DateConcerned = parseDayString(concerned)
	c.DateLimit = parseDayString(limit)
	if batteryID.Valid {
		bid := lease.BatteryContractID(batteryID.String)
		c.BatteryContractID = &bid
	}
	if assocID.Valid {
		aid := lease.AssociationID(assocID.String)
		c.AssociationID = &aid
	}
	c.CreatedAt = parseInstant(createdAt)
	c.UpdatedAt = parseInstant(updatedAt)
	return &c, nil
}

func (s *Store) SaveContract(ctx context.Context, c *lease.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveContract(ctx, s.db, c)
}

func saveContract(ctx context.Context, q querier, c *lease.Contract) error {
	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_amount = excluded.total_amount,
			paid_amount = excluded.paid_amount,
			remaining_amount = excluded.remaining_amount,
			per_payment_amount = excluded.per_payment_amount,
			date_concerned = excluded.date_concerned,
			date_limit = excluded.date_limit,
			status = excluded.status,
			battery_contract_id = excluded.battery_contract_id,
			association_id = excluded.association_id,
			leave_days_total = excluded.leave_days_total,
			leave_days_used = excluded.leave_days_used,
			leave_days_remaining = excluded.leave_days_remaining,
			updated_at = excluded.updated_at
	`

	var batteryID, assocID sql.NullString
	if c.BatteryContractID != nil {
		batteryID = sql.NullString{String: string(*c.BatteryContractID), Valid: true}
	}
	if c.AssociationID != nil {
		assocID = sql.NullString{String: string(*c.AssociationID), Valid: true}
	}

	_, err := q.ExecContext(ctx, query,
		c.ID, c.Reference,
		c.TotalAmount.String(), c.PaidAmount.String(), c.RemainingAmount.String(),
		c.PerPaymentAmount.String(),
		dayString(c.DateConcerned), dayString(c.DateLimit), c.Status,
		batteryID, assocID,
		c.LeaveDaysTotal, c.LeaveDaysUsed, c.LeaveDaysRemaining,
		instantString(c.CreatedAt), instantString(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

func (s *Store) ListActiveContractIDs(ctx context.Context) ([]lease.ContractID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveContractIDs(ctx, s.db)
}

func listActiveContractIDs(ctx context.Context, q querier) ([]lease.ContractID, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id FROM contracts WHERE status = ? ORDER BY reference ASC",
		lease.ContractActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []lease.ContractID
	for rows.Next() {
		var id lease.ContractID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetBatteryContract(ctx context.Context, id lease.BatteryContractID) (*lease.BatteryContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBatteryContract(ctx, s.db, id)
}

func getBatteryContract(ctx context.Context, q querier, id lease.BatteryContractID) (*lease.BatteryContract, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, reference, total_amount, paid_amount, remaining_amount, created_at, updated_at
		 FROM battery_contracts WHERE id = ?`, id)

	var (
		b                    lease.BatteryContract
		total, paid, rem     string
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.Reference, &total, &paid, &rem, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, lease.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan battery contract: %w", err)
	}

	b.TotalAmount = mustDecimal(total)
	b.PaidAmount = mustDecimal(paid)
	b.RemainingAmount = mustDecimal(rem)
	b.CreatedAt = parseInstant(createdAt)
	b.UpdatedAt = parseInstant(updatedAt)
	return &b, nil
}

func (s *Store) SaveBatteryContract(ctx context.Context, b *lease.BatteryContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBatteryContract(ctx, s.db, b)
}

func saveBatteryContract(ctx context.Context, q querier, b *lease.BatteryContract) error {
	query := `
		INSERT INTO battery_contracts
		(id, reference, total_amount, paid_amount, remaining_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_amount = excluded.total_amount,
			paid_amount = excluded.paid_amount,
			remaining_amount = excluded.remaining_amount,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		b.ID, b.Reference,
		b.TotalAmount.String(), b.PaidAmount.String(), b.RemainingAmount.String(),
		instantString(b.CreatedAt), instantString(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save battery contract: %w", err)
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, reference, contract_id, amount_moto, amount_battery, amount_total,
	date_concerned, date_limit, method, transaction_ref, status, recorded_by, created_at`

func (s *Store) CreatePayment(ctx context.Context, p *lease.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayment(ctx, s.db, p)
}

func createPayment(ctx context.Context, q querier, p *lease.PaymentRecord) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.Reference, p.ContractID,
		p.AmountMoto.String(), p.AmountBattery.String(), p.AmountTotal.String(),
		dayString(p.DateConcerned), dayString(p.DateLimit),
		p.Method, p.TransactionRef, p.Status, p.RecordedBy,
		instantString(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *Store) CountPaymentsInRange(ctx context.Context, id lease.ContractID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countPaymentsInRange(ctx, s.db, id, from, to)
}

func countPaymentsInRange(ctx context.Context, q querier, id lease.ContractID, from, to time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments
		 WHERE contract_id = ? AND created_at >= ? AND created_at < ?`,
		id, instantString(from), instantString(to),
	).Scan(&count)
	return count, err
}

func (s *Store) ListPaymentsForDay(ctx context.Context, id lease.ContractID, day lease.Day) ([]lease.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPaymentsForDay(ctx, s.db, id, day)
}

func listPaymentsForDay(ctx context.Context, q querier, id lease.ContractID, day lease.Day) ([]lease.PaymentRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE contract_id = ? AND date_concerned = ?
		 ORDER BY created_at ASC`,
		id, dayString(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []lease.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (lease.PaymentRecord, error) {
	var (
		p                     lease.PaymentRecord
		moto, battery, total  string
		concerned, limit      string
		method, txRef, by     sql.NullString
		createdAt             string
	)
	err := rows.Scan(&p.ID, &p.Reference, &p.ContractID,
		&moto, &battery, &total, &concerned, &limit,
		&method, &txRef, &p.Status, &by, &createdAt)
	if err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.AmountMoto = mustDecimal(moto)
	p.AmountBattery = mustDecimal(battery)
	p.AmountTotal = mustDecimal(total)
	p.DateConcerned = parseDayString(concerned)
	p.DateLimit = parseDayString(limit)
	p.Method = method.String
	p.TransactionRef = txRef.String
	p.RecordedBy = by.String
	p.CreatedAt = parseInstant(createdAt)
	return p, nil
}

// =============================================================================
// PENALTIES
// =============================================================================

const penaltyColumns = `id, contract_id, type, status, amount, paid_amount, remaining_amount,
	missed_date, reference_deadline, payment_due_at, motive, description,
	cancel_justification, cancelled_by, cancelled_at, created_at, updated_at`

func (s *Store) GetPenalty(ctx context.Context, id lease.PenaltyID) (*lease.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPenalty(ctx, s.db, id)
}

func getPenalty(ctx context.Context, q querier, id lease.PenaltyID) (*lease.Penalty, error) {
	return queryOnePenalty(ctx, q,
		"SELECT "+penaltyColumns+" FROM penalties WHERE id = ?", id)
}

func (s *Store) GetPenaltyForDay(ctx context.Context, id lease.ContractID, day lease.Day) (*lease.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPenaltyForDay(ctx, s.db, id, day)
}

func getPenaltyForDay(ctx context.Context, q querier, id lease.ContractID, day lease.Day) (*lease.Penalty, error) {
	return queryOnePenalty(ctx, q,
		"SELECT "+penaltyColumns+" FROM penalties WHERE contract_id = ? AND missed_date = ?",
		id, dayString(day))
}

func queryOnePenalty(ctx context.Context, q querier, query string, args ...any) (*lease.Penalty, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query penalty: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, lease.ErrPenaltyNotFound
	}
	p, err := scanPenalty(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreatePenalty(ctx context.Context, p *lease.Penalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPenalty(ctx, s.db, p)
}

func createPenalty(ctx context.Context, q querier, p *lease.Penalty) error {
	query := `
		INSERT INTO penalties (` + penaltyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.ContractID, p.Type, p.Status,
		p.Amount.String(), p.PaidAmount.String(), p.RemainingAmount.String(),
		dayString(p.MissedDate), dayString(p.ReferenceDeadline),
		nullInstant(p.PaymentDueAt),
		p.Motive, p.Description,
		p.CancelJustification, p.CancelledBy, nullInstant(p.CancelledAt),
		instantString(p.CreatedAt), instantString(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return lease.ErrPenaltyExists
		}
		return fmt.Errorf("failed to create penalty: %w", err)
	}
	return nil
}

func (s *Store) SavePenalty(ctx context.Context, p *lease.Penalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePenalty(ctx, s.db, p)
}

func savePenalty(ctx context.Context, q querier, p *lease.Penalty) error {
	query := `
		UPDATE penalties SET
			type = ?, status = ?,
			amount = ?, paid_amount = ?, remaining_amount = ?,
			payment_due_at = ?, motive = ?, description = ?,
			cancel_justification = ?, cancelled_by = ?, cancelled_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	res, err := q.ExecContext(ctx, query,
		p.Type, p.Status,
		p.Amount.String(), p.PaidAmount.String(), p.RemainingAmount.String(),
		nullInstant(p.PaymentDueAt), p.Motive, p.Description,
		p.CancelJustification, p.CancelledBy, nullInstant(p.CancelledAt),
		instantString(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save penalty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return lease.ErrPenaltyNotFound
	}
	return nil
}

func (s *Store) ListPenaltiesByMissedDate(ctx context.Context, day lease.Day, typ lease.PenaltyType) ([]lease.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPenaltiesByMissedDate(ctx, s.db, day, typ)
}

func listPenaltiesByMissedDate(ctx context.Context, q querier, day lease.Day, typ lease.PenaltyType) ([]lease.Penalty, error) {
	return queryPenalties(ctx, q,
		`SELECT `+penaltyColumns+` FROM penalties
		 WHERE missed_date = ? AND type = ?
		 ORDER BY created_at ASC`,
		dayString(day), typ)
}

func (s *Store) ListPenaltiesByContract(ctx context.Context, id lease.ContractID) ([]lease.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPenaltiesByContract(ctx, s.db, id)
}

func listPenaltiesByContract(ctx context.Context, q querier, id lease.ContractID) ([]lease.Penalty, error) {
	return queryPenalties(ctx, q,
		`SELECT `+penaltyColumns+` FROM penalties
		 WHERE contract_id = ?
		 ORDER BY missed_date ASC`,
		id)
}

func queryPenalties(ctx context.Context, q querier, query string, args ...any) ([]lease.Penalty, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query penalties: %w", err)
	}
	defer rows.Close()

	var penalties []lease.Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, err
		}
		penalties = append(penalties, p)
	}
	return penalties, rows.Err()
}

func scanPenalty(rows *sql.Rows) (lease.Penalty, error) {
	var (
		p                              lease.Penalty
		amount, paid, rem              string
		missed, deadline               string
		dueAt, cancelledAt             sql.NullString
		motive, desc, just, by         sql.NullString
		createdAt, updatedAt           string
	)
	err := rows.Scan(&p.ID, &p.ContractID, &p.Type, &p.Status,
		&amount, &paid, &rem, &missed, &deadline, &dueAt,
		&motive, &desc, &just, &by, &cancelledAt,
		&createdAt, &updatedAt)
	if err != nil {
		return p, fmt.Errorf("failed to scan penalty: %w", err)
	}

	p.Amount = mustDecimal(amount)
	p.PaidAmount = mustDecimal(paid)
	p.RemainingAmount = mustDecimal(rem)
	p.MissedDate = parseDayString(missed)
	p.ReferenceDeadline = parseDayString(deadline)
	p.PaymentDueAt = parseNullInstant(dueAt)
	p.Motive = motive.String
	p.Description = desc.String
	p.CancelJustification = just.String
	p.CancelledBy = by.String
	p.CancelledAt = parseNullInstant(cancelledAt)
	p.CreatedAt = parseInstant(createdAt)
	p.UpdatedAt = parseInstant(updatedAt)
	return p, nil
}

func (s *Store) HasOverduePenalty(ctx context.Context, id lease.ContractID, asOf time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasOverduePenalty(ctx, s.db, id, asOf)
}

func hasOverduePenalty(ctx context.Context, q querier, id lease.ContractID, asOf time.Time) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM penalties
		 WHERE contract_id = ?
		   AND status IN (?, ?)
		   AND payment_due_at IS NOT NULL AND payment_due_at < ?`,
		id, lease.PenaltyUnpaid, lease.PenaltyPartiallyPaid, instantString(asOf),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) CreatePenaltyPayment(ctx context.Context, p *lease.PenaltyPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPenaltyPayment(ctx, s.db, p)
}

func createPenaltyPayment(ctx context.Context, q querier, p *lease.PenaltyPayment) error {
	query := `
		INSERT INTO penalty_payments
		(id, reference, penalty_id, amount, method, transaction_ref, paid_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.Reference, p.PenaltyID,
		p.Amount.String(), p.Method, p.TransactionRef, p.PaidBy,
		instantString(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create penalty payment: %w", err)
	}
	return nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const leaveColumns = `id, contract_id, start_date, end_date, day_count, status, motive,
	created_at, updated_at`

func (s *Store) GetLeaveRequest(ctx context.Context, id lease.LeaveRequestID) (*lease.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLeaveRequest(ctx, s.db, id)
}

func getLeaveRequest(ctx context.Context, q querier, id lease.LeaveRequestID) (*lease.LeaveRequest, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+leaveColumns+" FROM leave_requests WHERE id = ?", id)

	var (
		l                    lease.LeaveRequest
		start, end           string
		motive               sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&l.ID, &l.ContractID, &start, &end, &l.DayCount,
		&l.Status, &motive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, lease.ErrLeaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan leave request: %w", err)
	}

	l.StartDate = parseDayString(start)
	l.EndDate = parseDayString(end)
	l.Motive = motive.String
	l.CreatedAt = parseInstant(createdAt)
	l.UpdatedAt = parseInstant(updatedAt)
	return &l, nil
}

func (s *Store) CreateLeaveRequest(ctx context.Context, l *lease.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertLeaveRequest(ctx, s.db, l)
}

func (s *Store) SaveLeaveRequest(ctx context.Context, l *lease.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertLeaveRequest(ctx, s.db, l)
}

func upsertLeaveRequest(ctx context.Context, q querier, l *lease.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (` + leaveColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			day_count = excluded.day_count,
			status = excluded.status,
			motive = excluded.motive,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		l.ID, l.ContractID,
		dayString(l.StartDate), dayString(l.EndDate), l.DayCount,
		l.Status, l.Motive,
		instantString(l.CreatedAt), instantString(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave request: %w", err)
	}
	return nil
}

func (s *Store) HasApprovedLeave(ctx context.Context, id lease.ContractID, day lease.Day) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasApprovedLeave(ctx, s.db, id, day)
}

func hasApprovedLeave(ctx context.Context, q querier, id lease.ContractID, day lease.Day) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leave_requests
		 WHERE contract_id = ? AND status = ?
		   AND start_date <= ? AND end_date >= ?`,
		id, lease.LeaveApproved, dayString(day), dayString(day),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// ASSOCIATIONS
// =============================================================================

func (s *Store) GetAssociation(ctx context.Context, id lease.AssociationID) (*lease.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAssociation(ctx, s.db, id)
}

func getAssociation(ctx context.Context, q querier, id lease.AssociationID) (*lease.Association, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, contract_id, driver_id, vehicle_id, swap_locked, updated_at
		 FROM associations WHERE id = ?`, id)

	var (
		a                  lease.Association
		driver, vehicle    sql.NullString
		updatedAt          string
	)
	err := row.Scan(&a.ID, &a.ContractID, &driver, &vehicle, &a.SwapLocked, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, lease.ErrAssociationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan association: %w", err)
	}

	a.DriverID = driver.String
	a.VehicleID = vehicle.String
	a.UpdatedAt = parseInstant(updatedAt)
	return &a, nil
}

func (s *Store) SaveAssociation(ctx context.Context, a *lease.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAssociation(ctx, s.db, a)
}

func saveAssociation(ctx context.Context, q querier, a *lease.Association) error {
	query := `
		INSERT INTO associations (id, contract_id, driver_id, vehicle_id, swap_locked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			driver_id = excluded.driver_id,
			vehicle_id = excluded.vehicle_id,
			swap_locked = excluded.swap_locked,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		a.ID, a.ContractID, a.DriverID, a.VehicleID, a.SwapLocked,
		instantString(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save association: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (lease.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the whole body, so fn must use only the Store it is handed.
func (s *Store) WithTx(ctx context.Context, fn func(store lease.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes Store calls through the open *sql.Tx. It must not take the
// parent mutex; WithTx already holds it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetContract(ctx context.Context, id lease.ContractID) (*lease.Contract, error) {
	return getContract(ctx, ts.tx, id)
}

func (ts *txStore) SaveContract(ctx context.Context, c *lease.Contract) error {
	return saveContract(ctx, ts.tx, c)
}

func (ts *txStore) ListActiveContractIDs(ctx context.Context) ([]lease.ContractID, error) {
	return listActiveContractIDs(ctx, ts.tx)
}

func (ts *txStore) GetBatteryContract(ctx context.Context, id lease.BatteryContractID) (*lease.BatteryContract, error) {
	return getBatteryContract(ctx, ts.tx, id)
}

func (ts *txStore) SaveBatteryContract(ctx context.Context, b *lease.BatteryContract) error {
	return saveBatteryContract(ctx, ts.tx, b)
}

func (ts *txStore) CreatePayment(ctx context.Context, p *lease.PaymentRecord) error {
	return createPayment(ctx, ts.tx, p)
}

func (ts *txStore) CountPaymentsInRange(ctx context.Context, id lease.ContractID, from, to time.Time) (int, error) {
	return countPaymentsInRange(ctx, ts.tx, id, from, to)
}

func (ts *txStore) ListPaymentsForDay(ctx context.Context, id lease.ContractID, day lease.Day) ([]lease.PaymentRecord, error) {
	return listPaymentsForDay(ctx, ts.tx, id, day)
}

func (ts *txStore) GetPenalty(ctx context.Context, id lease.PenaltyID) (*lease.Penalty, error) {
	return getPenalty(ctx, ts.tx, id)
}

func (ts *txStore) GetPenaltyForDay(ctx context.Context, id lease.ContractID, day lease.Day) (*lease.Penalty, error) {
	return getPenaltyForDay(ctx, ts.tx, id, day)
}

func (ts *txStore) CreatePenalty(ctx context.Context, p *lease.Penalty) error {
	return createPenalty(ctx, ts.tx, p)
}

func (ts *txStore) SavePenalty(ctx context.Context, p *lease.Penalty) error {
	return savePenalty(ctx, ts.tx, p)
}

func (ts *txStore) ListPenaltiesByMissedDate(ctx context.Context, day lease.Day, typ lease.PenaltyType) ([]lease.Penalty, error) {
	return listPenaltiesByMissedDate(ctx, ts.tx, day, typ)
}

func (ts *txStore) ListPenaltiesByContract(ctx context.Context, id lease.ContractID) ([]lease.Penalty, error) {
	return listPenaltiesByContract(ctx, ts.tx, id)
}

func (ts *txStore) HasOverduePenalty(ctx context.Context, id lease.ContractID, asOf time.Time) (bool, error) {
	return hasOverduePenalty(ctx, ts.tx, id, asOf)
}

func (ts *txStore) CreatePenaltyPayment(ctx context.Context, p *lease.PenaltyPayment) error {
	return createPenaltyPayment(ctx, ts.tx, p)
}

func (ts *txStore) GetLeaveRequest(ctx context.Context, id lease.LeaveRequestID) (*lease.LeaveRequest, error) {
	return getLeaveRequest(ctx, ts.tx, id)
}

func (ts *txStore) CreateLeaveRequest(ctx context.Context, l *lease.LeaveRequest) error {
	return upsertLeaveRequest(ctx, ts.tx, l)
}

func (ts *txStore) SaveLeaveRequest(ctx context.Context, l *lease.LeaveRequest) error {
	return upsertLeaveRequest(ctx, ts.tx, l)
}

func (ts *txStore) HasApprovedLeave(ctx context.Context, id lease.ContractID, day lease.Day) (bool, error) {
	return hasApprovedLeave(ctx, ts.tx, id, day)
}

func (ts *txStore) GetAssociation(ctx context.Context, id lease.AssociationID) (*lease.Association, error) {
	return getAssociation(ctx, ts.tx, id)
}

func (ts *txStore) SaveAssociation(ctx context.Context, a *lease.Association) error {
	return saveAssociation(ctx, ts.tx, a)
}

// =============================================================================
// HELPERS
// =============================================================================

// Instants are stored as UTC RFC3339 TEXT with a fixed-width 9-digit
// fraction so string comparison matches chronological order even at
// sub-second resolution (RFC3339Nano trims trailing zeros, which would
// sort "T04:00:00.5Z" before "T04:00:00Z"). Calendar days are stored as
// YYYY-MM-DD TEXT, with the zero Day encoded as ''.

const instantLayout = "2006-01-02T15:04:05.000000000Z07:00"

func instantString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(instantLayout)
}

func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullInstant(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: instantString(*t), Valid: true}
}

func parseNullInstant(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseInstant(s.String)
	return &t
}

func dayString(d lease.Day) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseDayString(s string) lease.Day {
	if s == "" {
		return lease.Day{}
	}
	d, _ := lease.ParseDay(s)
	return d
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
