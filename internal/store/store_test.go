package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(Config{Driver: "sqlite"})
	require.NoError(t, err)
	return db
}

func TestAddressStoreAddDeltaCreatesRowOnFirstUse(t *testing.T) {
	db := setupTestDB(t)
	addresses := NewAddressStore(db)

	require.NoError(t, addresses.Insert(Address{AddressID: "addrA", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("addrA", 7, 0, 500))

	available, locked, err := addresses.Balance("addrA", 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), available)
	require.Equal(t, int64(500), locked)
}

func TestAddressStoreAddDeltaAccumulates(t *testing.T) {
	db := setupTestDB(t)
	addresses := NewAddressStore(db)
	require.NoError(t, addresses.Insert(Address{AddressID: "addrA", CreateTime: 1}))

	require.NoError(t, addresses.AddDelta("addrA", 7, 0, 500))
	require.NoError(t, addresses.AddDelta("addrA", 7, 500, -500))

	available, locked, err := addresses.Balance("addrA", 7)
	require.NoError(t, err)
	require.Equal(t, int64(500), available)
	require.Equal(t, int64(0), locked)
}

func TestAddressStoreSumBalances(t *testing.T) {
	db := setupTestDB(t)
	addresses := NewAddressStore(db)
	require.NoError(t, addresses.Insert(Address{AddressID: "addrA", CreateTime: 1}))
	require.NoError(t, addresses.Insert(Address{AddressID: "addrB", CreateTime: 1}))

	require.NoError(t, addresses.AddDelta("addrA", 7, 100, 0))
	require.NoError(t, addresses.AddDelta("addrB", 7, 200, 50))

	available, locked, err := addresses.SumBalances(7)
	require.NoError(t, err)
	require.Equal(t, int64(300), available)
	require.Equal(t, int64(50), locked)
}

func TestTransactionStoreWebhookSentIdempotency(t *testing.T) {
	db := setupTestDB(t)
	txs := NewTransactionStore(db)
	require.NoError(t, txs.Insert(Transaction{TxID: "T1", Status: 1, CreateTime: 1}))

	sent, err := txs.WebhookSent("T1", "deposit_pending")
	require.NoError(t, err)
	require.False(t, sent)

	require.NoError(t, txs.MarkWebhookSent("T1", "deposit_pending"))

	sent, err = txs.WebhookSent("T1", "deposit_pending")
	require.NoError(t, err)
	require.True(t, sent)

	sent, err = txs.WebhookSent("T1", "deposit_confirmed")
	require.NoError(t, err)
	require.False(t, sent)
}

func TestWithdrawalStoreClaimForProcessingIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	withdrawals := NewWithdrawalStore(db)
	w, err := withdrawals.Insert(PendingWithdrawal{Sender: "a", Receiver: "b", AssetID: 7, Value: 500, Fee: 0, CreateTime: 1})
	require.NoError(t, err)

	ok, err := withdrawals.ClaimForProcessing(w.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = withdrawals.ClaimForProcessing(w.ID)
	require.NoError(t, err)
	require.False(t, ok, "a second claim on an already-processing row must fail")
}
