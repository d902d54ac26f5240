/*
Package memory provides an in-memory claims.TxRepository.

PURPOSE:
  Keeps members, ledgers, claims and the coverage transaction log in maps.
  Used by tests, the demo scenarios and `serve --db :memory:`-style runs
  where nothing needs to survive a restart.

TRANSACTIONS:
  WithTx serializes transactions, snapshots every map before running fn
  and restores the snapshot if fn returns an error, so a failed
  read-modify-write leaves nothing behind.

SEE ALSO:
  - store/sqlite: Durable implementation of the same interface
  - generic/store/memory.go: The transaction log this package embeds
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	genstore "github.com/warp/ticket-cover/generic/store"
)

// Repository implements claims.TxRepository in memory.
type Repository struct {
	*genstore.Memory

	txMu sync.Mutex // one transaction at a time

	mu      sync.RWMutex
	users   map[generic.EntityID]claims.User
	ledgers map[generic.EntityID]coverage.Ledger
	claims  map[string]claims.Claim
	seq     map[string]int // claim id -> insertion order
	nextSeq int
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		Memory:  genstore.NewMemory(),
		users:   make(map[generic.EntityID]claims.User),
		ledgers: make(map[generic.EntityID]coverage.Ledger),
		claims:  make(map[string]claims.Claim),
		seq:     make(map[string]int),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (r *Repository) SaveUser(_ context.Context, u claims.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

func (r *Repository) GetUser(_ context.Context, id generic.EntityID) (*claims.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrUserNotFound, id)
	}
	return &u, nil
}

func (r *Repository) ListUsers(_ context.Context) ([]claims.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]claims.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LEDGERS
// =============================================================================

func (r *Repository) SaveLedger(_ context.Context, l *coverage.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[l.UserID] = *l
	return nil
}

func (r *Repository) GetLedger(_ context.Context, userID generic.EntityID) (*coverage.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrLedgerNotFound, userID)
	}
	return &l, nil
}

func (r *Repository) ListLedgers(_ context.Context) ([]*coverage.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*coverage.Ledger, 0, len(r.ledgers))
	for _, l := range r.ledgers {
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

func (r *Repository) SaveClaim(_ context.Context, c claims.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seq[c.ID]; !ok {
		r.nextSeq++
		r.seq[c.ID] = r.nextSeq
	}
	c.Warnings = append([]string(nil), c.Warnings...)
	r.claims[c.ID] = c
	return nil
}

func (r *Repository) GetClaim(_ context.Context, id string) (*claims.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrClaimNotFound, id)
	}
	return &c, nil
}

// ClaimsByUser returns the member's claims in submission order.
func (r *Repository) ClaimsByUser(_ context.Context, userID generic.EntityID) ([]claims.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []claims.Claim
	for _, c := range r.claims {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type snapshot struct {
	log     genstore.Snapshot
	users   map[generic.EntityID]claims.User
	ledgers map[generic.EntityID]coverage.Ledger
	claims  map[string]claims.Claim
	seq     map[string]int
	nextSeq int
}

// WithTx runs fn atomically. On error every write fn made is undone.
func (r *Repository) WithTx(ctx context.Context, fn func(claims.Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	snap := r.snapshot()
	if err := fn(r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *Repository) snapshot() snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.Memory.Lock()
	defer r.Memory.Unlock()

	s := snapshot{
		log:     r.Memory.SnapshotLocked(),
		users:   make(map[generic.EntityID]claims.User, len(r.users)),
		ledgers: make(map[generic.EntityID]coverage.Ledger, len(r.ledgers)),
		claims:  make(map[string]claims.Claim, len(r.claims)),
		seq:     make(map[string]int, len(r.seq)),
		nextSeq: r.nextSeq,
	}
	for k, v := range r.users {
		s.users[k] = v
	}
	for k, v := range r.ledgers {
		s.ledgers[k] = v
	}
	for k, v := range r.claims {
		s.claims[k] = v
	}
	for k, v := range r.seq {
		s.seq[k] = v
	}
	return s
}

func (r *Repository) restore(s snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Memory.Lock()
	defer r.Memory.Unlock()

	r.Memory.RestoreLocked(s.log)
	r.users = s.users
	r.ledgers = s.ledgers
	r.claims = s.claims
	r.seq = s.seq
	r.nextSeq = s.nextSeq
}

// Reset drops everything (demo reload).
func (r *Repository) Reset(_ context.Context) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Memory.Lock()
	r.Memory.RestoreLocked(genstore.NewMemory().SnapshotLocked())
	r.Memory.Unlock()
	r.users = make(map[generic.EntityID]claims.User)
	r.ledgers = make(map[generic.EntityID]coverage.Ledger)
	r.claims = make(map[string]claims.Claim)
	r.seq = make(map[string]int)
	r.nextSeq = 0
	return nil
}

var _ claims.TxRepository = (*Repository)(nil)
