package projector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"
)

// fakeNode serves a scripted sequence of tx_list snapshots, one per
// projector Run, so a test can drive the projector through successive
// observations of the same transaction. A request with skip=0 starts a new
// Run and gets the next snapshot; any later page of that Run is empty.
func fakeNode(t *testing.T, pages ...[]noderpc.Transaction) *noderpc.Client {
	t.Helper()
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Skip int `json:"skip"`
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var page []noderpc.Transaction
		if req.Params.Skip == 0 {
			if call < len(pages) {
				page = pages[call]
			}
			call++
		}

		resultBytes, err := json.Marshal(page)
		require.NoError(t, err)

		resp := struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      int             `json:"id"`
			Result  json.RawMessage `json:"result"`
		}{JSONRPC: "2.0", ID: 1, Result: resultBytes}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return noderpc.New(srv.URL)
}

func setupDeps(t *testing.T) (*store.AddressStore, *store.TransactionStore, *store.WithdrawalStore) {
	t.Helper()
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	return store.NewAddressStore(db), store.NewTransactionStore(db), store.NewWithdrawalStore(db)
}

func TestScenarioPendingToConfirmedDeposit(t *testing.T) {
	addresses, txs, withdrawals := setupDeps(t)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))

	pending := []noderpc.Transaction{{
		TxID: "T1", Status: noderpc.TxStatusInProgress, Income: true,
		Receiver: "A", AssetID: 7, Value: 500, Confirmations: 0, CreateTime: 1,
	}}
	confirmed := []noderpc.Transaction{{
		TxID: "T1", Status: noderpc.TxStatusCompleted, Income: true,
		Receiver: "A", AssetID: 7, Value: 500, Confirmations: 80, CreateTime: 1,
	}}

	node := fakeNode(t, pending, confirmed, nil)
	p := New(node, addresses, txs, withdrawals, 80, logging.NewNoop())

	require.NoError(t, p.Run(context.Background()))
	available, locked, err := addresses.Balance("A", 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), available)
	require.Equal(t, int64(500), locked)

	require.NoError(t, p.Run(context.Background()))
	available, locked, err = addresses.Balance("A", 7)
	require.NoError(t, err)
	require.Equal(t, int64(500), available)
	require.Equal(t, int64(0), locked)

	tx, err := txs.Find("T1")
	require.NoError(t, err)
	require.True(t, tx.Success)
}

func TestScenarioReplayIsIdempotent(t *testing.T) {
	addresses, txs, withdrawals := setupDeps(t)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))

	confirmed := []noderpc.Transaction{{
		TxID: "T1", Status: noderpc.TxStatusCompleted, Income: true,
		Receiver: "A", AssetID: 7, Value: 500, Confirmations: 80, CreateTime: 1,
	}}

	node := fakeNode(t, confirmed, confirmed, nil)
	p := New(node, addresses, txs, withdrawals, 80, logging.NewNoop())

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Run(context.Background()))

	available, locked, err := addresses.Balance("A", 7)
	require.NoError(t, err)
	require.Equal(t, int64(500), available)
	require.Equal(t, int64(0), locked)
}

func TestScenarioFailedWithdrawalRefunds(t *testing.T) {
	addresses, txs, withdrawals := setupDeps(t)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 7, 0, 500))
	require.NoError(t, addresses.AddDelta("A", 0, 0, 100_000))

	w, err := withdrawals.Insert(store.PendingWithdrawal{
		Sender: "A", Receiver: "ext", AssetID: 7, Value: 500, Fee: 100_000, CreateTime: 1,
	})
	require.NoError(t, err)
	require.NoError(t, withdrawals.MarkSent(w.ID, "T3"))

	submitted := []noderpc.Transaction{{
		TxID: "T3", Status: noderpc.TxStatusInProgress, Sender: "A", Receiver: "ext",
		AssetID: 7, Value: 500, Fee: 100_000, CreateTime: 1,
	}}
	require.NoError(t, txs.Insert(store.Transaction{TxID: "T3", Status: noderpc.TxStatusInProgress, AssetID: 7, Value: 500, Fee: 100_000, Sender: "A", Receiver: "ext", CreateTime: 1}))

	failed := []noderpc.Transaction{{
		TxID: "T3", Status: noderpc.TxStatusFailed, Sender: "A", Receiver: "ext",
		AssetID: 7, Value: 500, Fee: 100_000, CreateTime: 1, FailureReason: "cancelled by peer",
	}}

	node := fakeNode(t, submitted, failed, nil)
	p := New(node, addresses, txs, withdrawals, 80, logging.NewNoop())

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Run(context.Background()))

	available, locked, err := addresses.Balance("A", 7)
	require.NoError(t, err)
	require.Equal(t, int64(500), available)
	require.Equal(t, int64(0), locked)

	availableBeam, lockedBeam, err := addresses.Balance("A", 0)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), availableBeam)
	require.Equal(t, int64(0), lockedBeam)

	pw, ok, err := withdrawals.FindByTxID("T3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.WithdrawalStatusFailed, pw.Status)

	tx, err := txs.Find("T3")
	require.NoError(t, err)
	require.Equal(t, noderpc.TxStatusFailed, tx.Status)
	require.True(t, tx.Success)
}
