package assetsync

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

func TestParseMetadataSplitsKeyValuePairs(t *testing.T) {
	meta := parseMetadata("STD:SCH_VER=1;N=Beam Token;SN=BEAM;NTH_RATIO=100000000")
	require.Equal(t, "1", meta["STD:SCH_VER"])
	require.Equal(t, "Beam Token", meta["N"])
	require.Equal(t, "BEAM", meta["SN"])
	require.Equal(t, "100000000", meta["NTH_RATIO"])
}

func TestRunEnsuresNativeAndUpsertsAssets(t *testing.T) {
	db, err := store.Connect(store.Config{Driver: "sqlite"})
	require.NoError(t, err)
	assets := store.NewAssetStore(db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result any
		switch req.Method {
		case "assets_list":
			result = []noderpc.Asset{
				{AssetID: 7, Metadata: "N=TestCoin;SN=TC;NTH_RATIO=100000000"},
			}
		}
		resultBytes, _ := json.Marshal(result)
		_ = json.NewEncoder(w).Encode(struct {
			Result json.RawMessage `json:"result"`
		}{Result: resultBytes})
	}))
	defer srv.Close()

	sync := New(noderpc.New(srv.URL), assets, []int64{7}, nil, "", "", logging.NewNoop())
	sync.Run(context.Background())

	native, err := assets.Get(store.NativeAssetID)
	require.NoError(t, err)
	require.True(t, native.IsVerified)

	a7, err := assets.Get(7)
	require.NoError(t, err)
	require.True(t, a7.IsVerified)
	require.Equal(t, int32(8), a7.Decimals)
}
