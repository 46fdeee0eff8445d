package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/pkg/storage"
)

// SlotName is the storage slot holding the wallet.
const SlotName = "wallet"

// AddressGenerator produces wallet addresses.
type AddressGenerator interface {
	Address() string
}

// Store is the single community wallet. Credit is the only operation that
// changes the balance, and it changes it together with the transaction log.
type Store struct {
	mu        sync.RWMutex
	wallet    *Wallet
	slot      storage.Slot
	addresses AddressGenerator
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore loads the wallet from slot. The wallet itself is created lazily
// on first use when nothing usable is persisted.
func NewStore(ctx context.Context, slot storage.Slot, addresses AddressGenerator, logger *zap.Logger) (*Store, error) {
	s := &Store{
		slot:      slot,
		addresses: addresses,
		logger:    logger,
		now:       time.Now,
	}

	var persisted Wallet
	err := storage.LoadJSON(ctx, slot, &persisted)
	switch {
	case errors.Is(err, storage.ErrSlotEmpty):
		return s, nil
	case errors.Is(err, storage.ErrCorruptPersistedState):
		logger.Warn("Persisted wallet is corrupt, starting fresh", zap.Error(err))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	if persisted.Transactions == nil {
		persisted.Transactions = []Transaction{}
	}
	if persisted.Address == "" {
		persisted.Address = addresses.Address()
	}
	// The balance is always the sum of the transactions.
	if sum := persisted.Sum(); sum != persisted.Balance {
		logger.Warn("Persisted wallet balance drifted from transactions, using the sum",
			zap.Int64("balance", persisted.Balance),
			zap.Int64("sum", sum))
		persisted.Balance = sum
	}
	s.wallet = &persisted

	logger.Info("Wallet loaded",
		zap.String("address", persisted.Address),
		zap.Int64("balance", persisted.Balance),
		zap.Int("transactions", len(persisted.Transactions)))
	return s, nil
}

// Wallet returns a snapshot of the wallet, creating and persisting it on
// first access.
func (s *Store) Wallet(ctx context.Context) (Wallet, error) {
	s.mu.RLock()
	if s.wallet != nil {
		w := s.wallet.clone()
		s.mu.RUnlock()
		return w, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return Wallet{}, err
	}
	return s.wallet.clone(), nil
}

func (s *Store) ensureLocked(ctx context.Context) error {
	if s.wallet != nil {
		return nil
	}
	s.wallet = &Wallet{
		Address:      s.addresses.Address(),
		Transactions: []Transaction{},
	}
	if err := s.persistLocked(ctx); err != nil {
		s.wallet = nil
		return err
	}
	s.logger.Info("Wallet created", zap.String("address", s.wallet.Address))
	return nil
}

// Credit records tx and adds its amount to the balance in one step.
// Missing type and timestamp are filled in. Amounts are not validated;
// issuance only ever posts positive credits.
func (s *Store) Credit(ctx context.Context, tx Transaction) error {
	if tx.Type == "" {
		tx.Type = TransactionTypeCFTIssued
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx); err != nil {
		return err
	}

	previous := *s.wallet
	s.wallet.Transactions = append([]Transaction{tx}, s.wallet.Transactions...)
	s.wallet.Balance += tx.Amount

	if err := s.persistLocked(ctx); err != nil {
		*s.wallet = previous
		return err
	}

	s.logger.Info("Wallet credited",
		zap.String("type", tx.Type),
		zap.Int64("amount", tx.Amount),
		zap.String("project_id", tx.ProjectID),
		zap.Int64("balance", s.wallet.Balance))
	return nil
}

// Balance returns the current balance, zero before the wallet exists.
func (s *Store) Balance() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallet == nil {
		return 0
	}
	return s.wallet.Balance
}

// Verify checks that the balance equals the sum of transaction amounts.
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallet == nil {
		return nil
	}
	if sum := s.wallet.Sum(); sum != s.wallet.Balance {
		return fmt.Errorf("%w: balance %d, sum %d", ErrBalanceDrift, s.wallet.Balance, sum)
	}
	return nil
}

// RecentCredits returns up to n positive transactions, newest first.
func (s *Store) RecentCredits(n int) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Transaction{}
	if s.wallet == nil || n <= 0 {
		return out
	}
	for _, tx := range s.wallet.Transactions {
		if tx.Amount <= 0 {
			continue
		}
		out = append(out, tx)
		if len(out) == n {
			break
		}
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := storage.SaveJSON(ctx, s.slot, s.wallet); err != nil {
		s.logger.Error("Failed to persist wallet", zap.Error(err))
		return fmt.Errorf("failed to persist wallet: %w", err)
	}
	return nil
}
