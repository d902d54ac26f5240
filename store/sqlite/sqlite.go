/*
Package sqlite provides a SQLite-backed claims.TxRepository.

PURPOSE:
  Durable storage for members, coverage ledgers, claims and the coverage
  transaction log. The same SQL runs on PostgreSQL with minor dialect
  changes (placeholders, upsert syntax).

INTERFACES IMPLEMENTED:
  generic.Store:       Transaction log persistence
  claims.Repository:   Members, ledgers, claims
  claims.TxRepository: Read-modify-write inside one SQL transaction

APPEND-ONLY ENFORCEMENT:
  The transactions table is never updated or deleted from (Reset aside).
  Ledger rows are the mutable fast path; the log explains them.

KEY TABLES:
  users:        Member records
  ledgers:      One coverage ledger per member (current period)
  claims:       Claims with a JSON snapshot of the plan at submission
  transactions: Immutable coverage log

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Every method on Store takes the
  lock; inside WithTx the callback gets a repository bound to the sql.Tx
  so reads observe the transaction's own writes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  repo, err := sqlite.New("./data/ticket-cover.db")
  if err != nil {
      log.Fatal().Err(err).Msg("open database")
  }
  defer repo.Close()

  svc := claims.NewService(repo, nil)

SEE ALSO:
  - claims/repository.go: Interface definitions
  - store/memory: In-memory implementation for tests and demos
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// Store implements claims.TxRepository using SQLite.
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
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

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
	-- Transactions (append-only coverage log)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Replay of one member's period (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_entity_date
		ON transactions(entity_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Members
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		membership_started_at TEXT NOT NULL,
		current_plan TEXT NOT NULL,
		has_active_subscription BOOLEAN NOT NULL DEFAULT FALSE,
		state TEXT NOT NULL DEFAULT '',
		last_claim_payout_date TEXT,
		created_at TEXT NOT NULL
	);

	-- Coverage ledgers (current period only; history lives in transactions)
	CREATE TABLE IF NOT EXISTS ledgers (
		user_id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		annual_cap TEXT NOT NULL,
		used_amount TEXT NOT NULL,
		tickets_used INTEGER NOT NULL,
		max_tickets INTEGER NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledgers_period_end
		ON ledgers(period_end);

	-- Claims
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		ticket_number TEXT NOT NULL,
		ticket_date TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		violation TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		payout_amount TEXT,
		payout_date TEXT,
		denial_reason TEXT,
		decision_notes TEXT,
		warnings_json TEXT,
		plan_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_user
		ON claims(user_id);
	CREATE INDEX IF NOT EXISTS idx_claims_user_ticket
		ON claims(user_id, ticket_number);
	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON claims(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

// Append adds a transaction to the log.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().Append(ctx, tx)
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (&txRepo{q: sqlTx}).AppendBatch(ctx, txs); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Load returns all transactions for an entity in log order.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().Load(ctx, entityID)
}

// LoadRange returns transactions with effective_at in [from, to).
func (s *Store) LoadRange(ctx context.Context, entityID generic.EntityID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().LoadRange(ctx, entityID, from, to)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().Exists(ctx, idempotencyKey)
}

// =============================================================================
// CLAIMS REPOSITORY (claims.Repository interface)
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u claims.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().SaveUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id generic.EntityID) (*claims.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) ([]claims.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().ListUsers(ctx)
}

func (s *Store) SaveLedger(ctx context.Context, l *coverage.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().SaveLedger(ctx, l)
}

func (s *Store) GetLedger(ctx context.Context, userID generic.EntityID) (*coverage.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().GetLedger(ctx, userID)
}

func (s *Store) ListLedgers(ctx context.Context) ([]*coverage.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().ListLedgers(ctx)
}

func (s *Store) SaveClaim(ctx context.Context, c claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().SaveClaim(ctx, c)
}

func (s *Store) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().GetClaim(ctx, id)
}

func (s *Store) ClaimsByUser(ctx context.Context, userID generic.EntityID) ([]claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo().ClaimsByUser(ctx, userID)
}

// =============================================================================
// TRANSACTIONAL STORE (claims.TxRepository interface)
// =============================================================================

// WithTx executes fn within a database transaction. fn's error rolls
// everything back.
func (s *Store) WithTx(ctx context.Context, fn func(repo claims.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txRepo{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", generic.ErrTransactionFailed, err)
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "claims", "ledgers", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) repo() *txRepo {
	return &txRepo{q: s.db}
}

// =============================================================================
// TX REPO - Queries bound to a *sql.DB or *sql.Tx (no locking)
// =============================================================================

type txRepo struct {
	q querier
}

const transactionColumns = `id, entity_id, policy_id, effective_at, delta_value, delta_unit,
	tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at`

func (r *txRepo) Append(ctx context.Context, tx generic.Transaction) error {
	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = generic.Today()
	}

	_, err = r.q.ExecContext(ctx, query,
		tx.ID,
		tx.EntityID,
		tx.PolicyID,
		formatTime(tx.EffectiveAt),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		nullString(tx.ReferenceID),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedBy,
		formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (r *txRepo) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := r.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE entity_id = ?
		ORDER BY effective_at ASC, rowid ASC
	`
	return r.queryTransactions(ctx, query, entityID)
}

func (r *txRepo) LoadRange(ctx context.Context, entityID generic.EntityID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE entity_id = ?
		  AND effective_at >= ? AND effective_at < ?
		ORDER BY effective_at ASC, rowid ASC
	`
	return r.queryTransactions(ctx, query, entityID, formatTime(from), formatTime(to))
}

func (r *txRepo) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (r *txRepo) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EntityID, &tx.PolicyID,
		&effectiveAt, &deltaValue, &deltaUnit, &tx.Type,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	var p fieldParser
	tx.EffectiveAt = p.time("effective_at", effectiveAt)
	tx.Delta = p.amount("delta_value", deltaValue, deltaUnit)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = p.time("created_at", createdAt)
	if p.err != nil {
		return tx, fmt.Errorf("failed to decode transaction %s: %w", tx.ID, p.err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("failed to decode metadata for %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}

// =============================================================================
// USERS
// =============================================================================

func (r *txRepo) SaveUser(ctx context.Context, u claims.User) error {
	query := `
		INSERT INTO users (id, name, membership_started_at, current_plan,
			has_active_subscription, state, last_claim_payout_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			membership_started_at = excluded.membership_started_at,
			current_plan = excluded.current_plan,
			has_active_subscription = excluded.has_active_subscription,
			state = excluded.state,
			last_claim_payout_date = excluded.last_claim_payout_date
	`

	_, err := r.q.ExecContext(ctx, query,
		u.ID, u.Name,
		formatTime(u.MembershipStartedAt),
		u.CurrentPlan,
		u.HasActiveSubscription,
		u.State,
		nullTime(u.LastClaimPayoutDate),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

const userColumns = `id, name, membership_started_at, current_plan,
	has_active_subscription, state, last_claim_payout_date`

func (r *txRepo) GetUser(ctx context.Context, id generic.EntityID) (*claims.User, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *txRepo) ListUsers(ctx context.Context) ([]claims.User, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []claims.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*claims.User, error) {
	var (
		u          claims.User
		startedAt  string
		plan       string
		lastPayout sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &startedAt, &plan, &u.HasActiveSubscription, &u.State, &lastPayout); err != nil {
		return nil, err
	}
	var p fieldParser
	u.MembershipStartedAt = p.time("membership_started_at", startedAt)
	u.CurrentPlan = policy.Tier(plan)
	u.LastClaimPayoutDate = p.nullTime("last_claim_payout_date", lastPayout)
	if p.err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", u.ID, p.err)
	}
	return &u, nil
}

// =============================================================================
// LEDGERS
// =============================================================================

func (r *txRepo) SaveLedger(ctx context.Context, l *coverage.Ledger) error {
	query := `
		INSERT INTO ledgers (user_id, plan_id, annual_cap, used_amount, tickets_used,
			max_tickets, period_start, period_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			annual_cap = excluded.annual_cap,
			used_amount = excluded.used_amount,
			tickets_used = excluded.tickets_used,
			max_tickets = excluded.max_tickets,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		l.UserID, l.PlanID,
		l.AnnualCap.Value.String(),
		l.UsedAmount.Value.String(),
		l.TicketsUsed, l.MaxTickets,
		formatTime(l.Period.Start),
		formatTime(l.Period.End),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

const ledgerColumns = `user_id, plan_id, annual_cap, used_amount, tickets_used,
	max_tickets, period_start, period_end`

func (r *txRepo) GetLedger(ctx context.Context, userID generic.EntityID) (*coverage.Ledger, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+ledgerColumns+" FROM ledgers WHERE user_id = ?", userID)
	l, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrLedgerNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *txRepo) ListLedgers(ctx context.Context) ([]*coverage.Ledger, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+ledgerColumns+" FROM ledgers ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ledgers []*coverage.Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, rows.Err()
}

func scanLedger(row scanner) (*coverage.Ledger, error) {
	var (
		l           coverage.Ledger
		plan        string
		annualCap   string
		used        string
		periodStart string
		periodEnd   string
	)
	if err := row.Scan(&l.UserID, &plan, &annualCap, &used, &l.TicketsUsed, &l.MaxTickets, &periodStart, &periodEnd); err != nil {
		return nil, err
	}
	l.PlanID = policy.Tier(plan)
	var p fieldParser
	l.AnnualCap = p.amount("annual_cap", annualCap, string(generic.UnitUSD))
	l.UsedAmount = p.amount("used_amount", used, string(generic.UnitUSD))
	l.Period = generic.Period{Start: p.time("period_start", periodStart), End: p.time("period_end", periodEnd)}
	if p.err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s: %w", l.UserID, p.err)
	}
	return &l, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

func (r *txRepo) SaveClaim(ctx context.Context, c claims.Claim) error {
	warningsJSON, err := json.Marshal(c.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}
	planJSON, err := json.Marshal(c.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan snapshot: %w", err)
	}

	var payout sql.NullString
	if c.PayoutAmount != nil {
		payout = sql.NullString{String: c.PayoutAmount.Value.String(), Valid: true}
	}

	query := `
		INSERT INTO claims (id, user_id, ticket_number, ticket_date, city, state, violation,
			amount, status, submitted_at, updated_at, payout_amount, payout_date,
			denial_reason, decision_notes, warnings_json, plan_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			payout_amount = excluded.payout_amount,
			payout_date = excluded.payout_date,
			denial_reason = excluded.denial_reason,
			decision_notes = excluded.decision_notes,
			warnings_json = excluded.warnings_json
	`

	_, err = r.q.ExecContext(ctx, query,
		c.ID, c.UserID, c.TicketNumber,
		formatTime(c.TicketDate),
		c.City, c.State, c.Violation,
		c.Amount.Value.String(),
		c.Status,
		formatTime(c.SubmittedAt),
		formatTime(c.UpdatedAt),
		payout,
		nullTime(c.PayoutDate),
		nullString(c.DenialReason),
		nullString(c.DecisionNotes),
		string(warningsJSON),
		string(planJSON),
	)
	return err
}

const claimColumns = `id, user_id, ticket_number, ticket_date, city, state, violation,
	amount, status, submitted_at, updated_at, payout_amount, payout_date,
	denial_reason, decision_notes, warnings_json, plan_json`

func (r *txRepo) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+claimColumns+" FROM claims WHERE id = ?", id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ClaimsByUser returns the member's claims in submission order. Upserts
// keep the rowid, so rowid order is insertion order.
func (r *txRepo) ClaimsByUser(ctx context.Context, userID generic.EntityID) ([]claims.Claim, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE user_id = ? ORDER BY rowid ASC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []claims.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanClaim(row scanner) (*claims.Claim, error) {
	var (
		c             claims.Claim
		ticketDate    string
		violation     string
		amount        string
		status        string
		submittedAt   string
		updatedAt     string
		payoutAmount  sql.NullString
		payoutDate    sql.NullString
		denialReason  sql.NullString
		decisionNotes sql.NullString
		warningsJSON  sql.NullString
		planJSON      string
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.TicketNumber, &ticketDate, &c.City, &c.State, &violation,
		&amount, &status, &submittedAt, &updatedAt, &payoutAmount, &payoutDate,
		&denialReason, &decisionNotes, &warningsJSON, &planJSON,
	)
	if err != nil {
		return nil, err
	}

	var p fieldParser
	c.TicketDate = p.time("ticket_date", ticketDate)
	c.Violation = policy.ViolationType(violation)
	c.Amount = p.amount("amount", amount, string(generic.UnitUSD))
	c.Status = claims.Status(status)
	c.SubmittedAt = p.time("submitted_at", submittedAt)
	c.UpdatedAt = p.time("updated_at", updatedAt)
	if payoutAmount.Valid {
		payout := p.amount("payout_amount", payoutAmount.String, string(generic.UnitUSD))
		c.PayoutAmount = &payout
	}
	c.PayoutDate = p.nullTime("payout_date", payoutDate)
	if p.err != nil {
		return nil, fmt.Errorf("failed to decode claim %s: %w", c.ID, p.err)
	}
	c.DenialReason = denialReason.String
	c.DecisionNotes = decisionNotes.String

	if warningsJSON.Valid && warningsJSON.String != "" && warningsJSON.String != "null" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &c.Warnings); err != nil {
			return nil, fmt.Errorf("failed to decode warnings for claim %s: %w", c.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(planJSON), &c.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan snapshot for claim %s: %w", c.ID, err)
	}
	return &c, nil
}

var (
	_ claims.TxRepository = (*Store)(nil)
	_ claims.Repository   = (*txRepo)(nil)
)

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// formatTime stores dates as RFC3339 UTC so text order is time order.
func formatTime(tp generic.TimePoint) string {
	return tp.Time.UTC().Format(time.RFC3339)
}

func nullTime(tp *generic.TimePoint) sql.NullString {
	if tp == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*tp), Valid: true}
}

// fieldParser decodes stored text columns. The first malformed column is
// kept in err and later calls return zero values.
type fieldParser struct {
	err error
}

func (p *fieldParser) time(column, s string) generic.TimePoint {
	if p.err != nil {
		return generic.TimePoint{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		p.err = fmt.Errorf("column %s: invalid time %q: %w", column, s, err)
		return generic.TimePoint{}
	}
	return generic.DateOf(t)
}

func (p *fieldParser) nullTime(column string, s sql.NullString) *generic.TimePoint {
	if !s.Valid || s.String == "" {
		return nil
	}
	tp := p.time(column, s.String)
	if p.err != nil {
		return nil
	}
	return &tp
}

func (p *fieldParser) amount(column, value, unit string) generic.Amount {
	if p.err != nil {
		return generic.Amount{}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		p.err = fmt.Errorf("column %s: invalid amount %q: %w", column, value, err)
		return generic.Amount{}
	}
	return generic.Amount{Value: d, Unit: generic.Unit(unit)}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
