package auditor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"
)

func fakeWalletStatus(t *testing.T, totals []noderpc.WalletTotal) *noderpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, _ := json.Marshal(noderpc.WalletStatus{Totals: totals})
		_ = json.NewEncoder(w).Encode(struct {
			Result json.RawMessage `json:"result"`
		}{Result: result})
	}))
	t.Cleanup(srv.Close)
	return noderpc.New(srv.URL)
}

func TestNoDiscrepancyWhenTotalsAgree(t *testing.T) {
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	addresses := store.NewAddressStore(db)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 7, 500, 0))

	node := fakeWalletStatus(t, []noderpc.WalletTotal{{AssetID: 7, Available: 500, Locked: 0}})
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	a := New(node, addresses, m, logging.NewNoop())

	discrepancies, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}

func TestDiscrepancyDetectedOnMismatch(t *testing.T) {
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	addresses := store.NewAddressStore(db)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 7, 400, 0))

	node := fakeWalletStatus(t, []noderpc.WalletTotal{{AssetID: 7, Available: 500, Locked: 0}})
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	a := New(node, addresses, m, logging.NewNoop())

	discrepancies, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	require.Equal(t, int64(7), discrepancies[0].AssetID)
}

func TestDiscrepancyDetectedForLedgerOnlyAsset(t *testing.T) {
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	addresses := store.NewAddressStore(db)
	require.NoError(t, addresses.Insert(store.Address{AddressID: "A", CreateTime: 1}))
	require.NoError(t, addresses.AddDelta("A", 9, 500, 0))

	node := fakeWalletStatus(t, nil) // node reports no totals for asset 9 at all
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	a := New(node, addresses, m, logging.NewNoop())

	discrepancies, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	require.Equal(t, int64(9), discrepancies[0].AssetID)
	require.Equal(t, int64(0), discrepancies[0].NodeAvailable)
	require.Equal(t, int64(500), discrepancies[0].LedgerAvailable)
}
