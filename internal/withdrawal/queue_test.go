package withdrawal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

type scriptedNode struct {
	srv     *httptest.Server
	client  *noderpc.Client
	utxos   map[int64][]noderpc.UTXO
	sendTxID string
	sendErr  error
}

func newScriptedNode(t *testing.T) *scriptedNode {
	t.Helper()
	n := &scriptedNode{utxos: map[int64][]noderpc.UTXO{}}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result any
		var rpcErr *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}

		switch req.Method {
		case "get_utxo":
			var p struct {
				Filter struct {
					AssetID int64 `json:"asset_id"`
				} `json:"filter"`
			}
			_ = json.Unmarshal(req.Params, &p)
			result = n.utxos[p.Filter.AssetID]
		case "tx_send":
			if n.sendErr != nil {
				rpcErr = &struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				}{Code: 1, Message: n.sendErr.Error()}
			} else {
				result = struct {
					TxID string `json:"txId"`
				}{TxID: n.sendTxID}
			}
		}

		resultBytes, _ := json.Marshal(result)
		resp := struct {
			Result json.RawMessage `json:"result"`
			Error  any             `json:"error,omitempty"`
		}{Result: resultBytes, Error: rpcErr}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(n.srv.Close)
	n.client = noderpc.New(n.srv.URL)
	return n
}

func setup(t *testing.T) (*store.AddressStore, *store.TransactionStore, *store.WithdrawalStore, *metrics.Metrics) {
	t.Helper()
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return store.NewAddressStore(db), store.NewTransactionStore(db), store.NewWithdrawalStore(db), m
}

func TestConsistencyGateRoutesToAdminCheck(t *testing.T) {
	addresses, txs, withdrawals, m := setup(t)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 7, 0, 500))

	w1, err := withdrawals.Insert(store.PendingWithdrawal{Sender: "A", Receiver: "x", AssetID: 7, Value: 400, Fee: 0, CreateTime: 1})
	require.NoError(t, err)
	_, err = withdrawals.Insert(store.PendingWithdrawal{Sender: "A", Receiver: "y", AssetID: 7, Value: 300, Fee: 0, CreateTime: 2})
	require.NoError(t, err)

	node := newScriptedNode(t)
	p := New(node.client, addresses, txs, withdrawals, m, logging.NewNoop())
	require.NoError(t, p.Run(context.Background()))

	pw, err := withdrawals.FindByID(w1.ID)
	require.NoError(t, err)
	require.Equal(t, store.WithdrawalStatusAdminCheck, pw.Status)
}

func TestUTXOShortageLeavesRowPending(t *testing.T) {
	addresses, txs, withdrawals, m := setup(t)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 7, 0, 500))
	require.NoError(t, addresses.AddDelta("A", 0, 0, 100_000))

	w1, err := withdrawals.Insert(store.PendingWithdrawal{Sender: "A", Receiver: "x", AssetID: 7, Value: 500, Fee: 100_000, CreateTime: 1})
	require.NoError(t, err)

	node := newScriptedNode(t)
	node.utxos[7] = []noderpc.UTXO{{AssetID: 7, Amount: 400, Status: 1}}
	node.utxos[0] = []noderpc.UTXO{{AssetID: 0, Amount: 1_000_000, Status: 1}}

	p := New(node.client, addresses, txs, withdrawals, m, logging.NewNoop())
	require.NoError(t, p.Run(context.Background()))

	pw, err := withdrawals.FindByID(w1.ID)
	require.NoError(t, err)
	require.Equal(t, store.WithdrawalStatusPending, pw.Status)
}

func TestSuccessfulSubmissionMarksSentAndInsertsLedgerRow(t *testing.T) {
	addresses, txs, withdrawals, m := setup(t)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 7, 0, 500))
	require.NoError(t, addresses.AddDelta("A", 0, 0, 100_000))

	w1, err := withdrawals.Insert(store.PendingWithdrawal{Sender: "A", Receiver: "x", AssetID: 7, Value: 500, Fee: 100_000, CreateTime: 1})
	require.NoError(t, err)

	node := newScriptedNode(t)
	node.utxos[7] = []noderpc.UTXO{{AssetID: 7, Amount: 500, Status: 1}}
	node.utxos[0] = []noderpc.UTXO{{AssetID: 0, Amount: 1_000_000, Status: 1}}
	node.sendTxID = "T9"

	p := New(node.client, addresses, txs, withdrawals, m, logging.NewNoop())
	require.NoError(t, p.Run(context.Background()))

	pw, err := withdrawals.FindByID(w1.ID)
	require.NoError(t, err)
	require.Equal(t, store.WithdrawalStatusSent, pw.Status)
	require.NotNil(t, pw.TxID)
	require.Equal(t, "T9", *pw.TxID)

	tx, err := txs.Find("T9")
	require.NoError(t, err)
	require.False(t, tx.Success)
	require.Equal(t, noderpc.TxStatusPending, tx.Status)
}
