// Package store provides in-memory generic.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/ticket-cover/generic"
)

// =============================================================================
// MEMORY STORE - In-memory transaction log (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[generic.EntityID][]generic.Transaction
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[generic.EntityID][]generic.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendLocked(tx)
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		if err := m.AppendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

// AppendLocked inserts tx keeping EffectiveAt order; equal dates keep
// insertion order. Callers must hold the write lock (see Lock).
func (m *Memory) AppendLocked(tx generic.Transaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}

	txs := m.transactions[tx.EntityID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})

	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.EntityID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LoadLocked(entityID), nil
}

// LoadLocked returns a copy of the entity's log without taking the lock.
func (m *Memory) LoadLocked(entityID generic.EntityID) []generic.Transaction {
	result := make([]generic.Transaction, len(m.transactions[entityID]))
	copy(result, m.transactions[entityID])
	return result
}

func (m *Memory) LoadRange(_ context.Context, entityID generic.EntityID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LoadRangeLocked(entityID, from, to), nil
}

// LoadRangeLocked filters [from, to) without taking the lock.
func (m *Memory) LoadRangeLocked(entityID generic.EntityID, from, to generic.TimePoint) []generic.Transaction {
	var result []generic.Transaction
	for _, tx := range m.transactions[entityID] {
		if from.BeforeOrEqual(tx.EffectiveAt) && tx.EffectiveAt.Before(to) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// ExistsLocked checks an idempotency key without taking the lock.
func (m *Memory) ExistsLocked(idempotencyKey string) bool {
	return m.idempotency[idempotencyKey]
}

// Lock and Unlock expose the write lock so an owning store can hold it
// across a multi-record transaction.
func (m *Memory) Lock()   { m.mu.Lock() }
func (m *Memory) Unlock() { m.mu.Unlock() }

// =============================================================================
// SNAPSHOT / RESTORE - rollback support for transactional wrappers
// =============================================================================

// Snapshot is a point-in-time copy of the log.
type Snapshot struct {
	transactions map[generic.EntityID][]generic.Transaction
	idempotency  map[string]bool
}

// SnapshotLocked copies the current state. Caller holds the lock.
func (m *Memory) SnapshotLocked() Snapshot {
	txsCopy := make(map[generic.EntityID][]generic.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txsCopy[k] = append([]generic.Transaction{}, v...)
	}
	idempCopy := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idempCopy[k] = v
	}
	return Snapshot{transactions: txsCopy, idempotency: idempCopy}
}

// RestoreLocked rolls the log back to s. Caller holds the lock.
func (m *Memory) RestoreLocked(s Snapshot) {
	m.transactions = s.transactions
	m.idempotency = s.idempotency
}
