// Package assetsync implements the asset registry synchronizer (§4.3): it
// keeps the local asset table current with the node's assets_list, the
// configured verified/spam sets, and, when a DEX contract is configured,
// liquidity-pool cross rates against the native token.
package assetsync

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"
)

// Synchronizer refreshes the asset table once per slow-loop cycle.
type Synchronizer struct {
	node            *noderpc.Client
	assets          *store.AssetStore
	httpClient      *http.Client
	logger          logging.Logger
	verified        map[int64]bool
	spam            map[int64]bool
	dexContractID   string
	nativePriceURL  string
	nativePriceUSD  float64
}

// New builds a Synchronizer. verified/spam classify asset ids into the
// is_verified/is_spam flags; dexContractID and nativePriceURL may be empty,
// in which case the corresponding sync steps are skipped.
func New(node *noderpc.Client, assets *store.AssetStore, verified, spam []int64, dexContractID, nativePriceURL string, logger logging.Logger) *Synchronizer {
	verifiedSet := make(map[int64]bool, len(verified))
	for _, id := range verified {
		verifiedSet[id] = true
	}
	spamSet := make(map[int64]bool, len(spam))
	for _, id := range spam {
		spamSet[id] = true
	}
	return &Synchronizer{
		node:           node,
		assets:         assets,
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		logger:         logger.NewSystem("asset-sync"),
		verified:       verifiedSet,
		spam:           spamSet,
		dexContractID:  dexContractID,
		nativePriceURL: nativePriceURL,
	}
}

// Run performs one full sync cycle. Every step logs and continues past its
// own failure rather than aborting the remaining steps.
func (s *Synchronizer) Run(ctx context.Context) {
	if err := s.assets.EnsureNative(); err != nil {
		s.logger.Error("ensure native asset failed", "error", err)
	}

	if err := s.refreshNativePrice(ctx); err != nil {
		s.logger.Error("native price refresh failed", "error", err)
	}

	assets, err := s.node.AssetsList(ctx, true)
	if err != nil {
		s.logger.Error("assets_list failed", "error", err)
	} else {
		for _, a := range assets {
			if err := s.upsertAsset(a); err != nil {
				s.logger.Error("upsert asset failed", "assetId", a.AssetID, "error", err)
			}
		}
	}

	if s.dexContractID != "" {
		if err := s.syncLiquidityPools(ctx); err != nil {
			s.logger.Error("liquidity pool sync failed", "error", err)
		}
	}
}

func (s *Synchronizer) upsertAsset(a noderpc.Asset) error {
	meta := parseMetadata(a.Metadata)
	decimals := int32(8)
	if raw, ok := meta["NTH_RATIO"]; ok {
		if ratio, err := strconv.ParseInt(raw, 10, 64); err == nil && ratio > 0 {
			decimals = int32(math.Log10(float64(ratio)))
		}
	}

	existing, err := s.assets.Get(a.AssetID)
	rateBeam, rateUSD := 0.0, 0.0
	if err == nil {
		rateBeam, rateUSD = existing.RateBeam, existing.RateUSD
	}

	return s.assets.Upsert(store.Asset{
		AssetID:     a.AssetID,
		MetadataRaw: a.Metadata,
		Decimals:    decimals,
		IsVerified:  s.verified[a.AssetID],
		IsSpam:      s.spam[a.AssetID],
		RateBeam:    rateBeam,
		RateUSD:     rateUSD,
		UpdatedAt:   time.Now(),
	})
}

// parseMetadata splits a "K1=V1;K2=V2" metadata string into a key-value
// map, matching the wallet node's asset metadata wire format. Malformed
// pairs are skipped rather than failing the whole parse.
func parseMetadata(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

// dexPoolsViewArgs builds the invoke_contract args string for a pools_view
// call against the configured DEX contract.
func (s *Synchronizer) dexPoolsViewArgs() string {
	return fmt.Sprintf("role=manager,action=pools_view,cid=%s", s.dexContractID)
}

type dexInvokeOutput struct {
	Res []noderpc.LiquidityPool `json:"res"`
}

// syncLiquidityPools fetches the DEX pool list and derives, for each pool
// touching the native asset, a rate_beam and rate_usd for the other side.
func (s *Synchronizer) syncLiquidityPools(ctx context.Context) error {
	raw, err := s.node.InvokeContract(ctx, s.dexPoolsViewArgs())
	if err != nil {
		return fmt.Errorf("invoke_contract pools_view: %w", err)
	}

	var out dexInvokeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("parse dex pools response: %w", err)
	}

	for _, pool := range out.Res {
		var beamRate1, beamRate2 float64
		var has1, has2 bool

		if pool.Asset1 == store.NativeAssetID {
			beamRate2 = float64(pool.K2To1)
			has2 = true
		}
		if pool.Asset2 == store.NativeAssetID {
			beamRate1 = float64(pool.K1To2)
			has1 = true
		}

		if has1 {
			if err := s.assets.SetRates(pool.Asset1, beamRate1, beamRate1*s.nativePriceUSD); err != nil {
				s.logger.Error("set rates failed", "assetId", pool.Asset1, "error", err)
			}
		}
		if has2 {
			if err := s.assets.SetRates(pool.Asset2, beamRate2, beamRate2*s.nativePriceUSD); err != nil {
				s.logger.Error("set rates failed", "assetId", pool.Asset2, "error", err)
			}
		}
	}
	return nil
}

// refreshNativePrice fetches the native token's USD price from the
// configured price feed, used to derive rate_usd for DEX-quoted assets.
func (s *Synchronizer) refreshNativePrice(ctx context.Context) error {
	if s.nativePriceURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.nativePriceURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode price response: %w", err)
	}
	s.nativePriceUSD = payload.Price
	return nil
}
