package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/store"
)

func setupDispatcher(t *testing.T, urls []string, maxRetries int) (*Dispatcher, *store.TransactionStore, *store.AssetStore, *store.WebhookStore) {
	t.Helper()
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	txs := store.NewTransactionStore(db)
	assets := store.NewAssetStore(db)
	webhooks := store.NewWebhookStore(db)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	d := New(txs, assets, webhooks, urls, maxRetries, 80, m, logging.NewNoop(), nil)
	d.sleep = func(context.Context, time.Duration) {} // instant backoff in tests
	return d, txs, assets, webhooks
}

func TestDepositPendingFiresOnIncomeStatus1(t *testing.T) {
	var received Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, txs, _, _ := setupDispatcher(t, []string{srv.URL}, 3)
	require.NoError(t, txs.Insert(store.Transaction{TxID: "T1", Status: 1, Income: true, Receiver: "A", AssetID: 0, Value: 500, CreateTime: 1}))

	require.NoError(t, d.Run(context.Background()))

	require.Equal(t, EventDepositPending, received.Event)
	require.Equal(t, "T1", received.TxID)

	sent, err := txs.WebhookSent("T1", EventDepositPending)
	require.NoError(t, err)
	require.True(t, sent)
}

func TestEventNotResentOnSecondRun(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, txs, _, _ := setupDispatcher(t, []string{srv.URL}, 3)
	require.NoError(t, txs.Insert(store.Transaction{TxID: "T1", Status: 1, Income: true, Receiver: "A", AssetID: 0, Value: 500, CreateTime: 1}))

	require.NoError(t, d.Run(context.Background()))
	require.NoError(t, d.Run(context.Background()))

	require.Equal(t, 1, calls)
}

func TestExhaustedRetriesDeadLetters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, txs, _, webhooks := setupDispatcher(t, []string{srv.URL}, 2)
	require.NoError(t, txs.Insert(store.Transaction{TxID: "T1", Status: 1, Income: true, Receiver: "A", AssetID: 0, Value: 500, CreateTime: 1}))

	require.NoError(t, d.Run(context.Background()))

	failed, err := webhooks.ListFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, EventDepositPending, failed[0].EventType)

	sent, err := txs.WebhookSent("T1", EventDepositPending)
	require.NoError(t, err)
	require.False(t, sent)
}

func TestReplayDeletesOnSuccess(t *testing.T) {
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if up {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	up = false
	d, txs, _, webhooks := setupDispatcher(t, []string{srv.URL}, 1)
	require.NoError(t, txs.Insert(store.Transaction{TxID: "T1", Status: 1, Income: true, Receiver: "A", AssetID: 0, Value: 500, CreateTime: 1}))
	require.NoError(t, d.Run(context.Background()))

	failed, err := webhooks.ListFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)

	up = true
	require.NoError(t, d.Run(context.Background()))

	failed, err = webhooks.ListFailed()
	require.NoError(t, err)
	require.Len(t, failed, 0)
}
