package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/pkg/storage"
)

func TestReconcilerRunOnce(t *testing.T) {
	store := newLedger(t, storage.NewMemoryBackend())
	require.NoError(t, store.Credit(context.Background(), Transaction{Amount: 42}))

	r := NewReconciler(store, zap.NewNop(), "")
	assert.NoError(t, r.RunOnce())

	runs, drifts := r.Stats()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, drifts)
}

func TestReconcilerCountsDrift(t *testing.T) {
	store := newLedger(t, storage.NewMemoryBackend())
	require.NoError(t, store.Credit(context.Background(), Transaction{Amount: 5}))
	store.wallet.Balance = 1
	r := NewReconciler(store, zap.NewNop(), "")

	assert.ErrorIs(t, r.RunOnce(), ErrBalanceDrift)
	_, drifts := r.Stats()
	assert.Equal(t, 1, drifts)
}

func TestReconcilerStartStop(t *testing.T) {
	r := NewReconciler(newLedger(t, storage.NewMemoryBackend()), zap.NewNop(), "*/1 * * * * *")

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
	r.Stop()
	r.Stop()
}

func TestReconcilerRejectsBadSchedule(t *testing.T) {
	r := NewReconciler(newLedger(t, storage.NewMemoryBackend()), zap.NewNop(), "every tuesday")
	assert.Error(t, r.Start())
}
