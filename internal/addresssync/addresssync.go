// Package addresssync implements the address synchronizer (§4.4): it keeps
// the ledger's address table in step with the node's own receive
// addresses, never deleting an address once observed.
package addresssync

import (
	"context"
	"fmt"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"
)

const neverExpire = "never"

// Synchronizer keeps the ledger's address table current with addr_list.
type Synchronizer struct {
	node      *noderpc.Client
	addresses *store.AddressStore
	logger    logging.Logger
}

func New(node *noderpc.Client, addresses *store.AddressStore, logger logging.Logger) *Synchronizer {
	return &Synchronizer{node: node, addresses: addresses, logger: logger.NewSystem("address-sync")}
}

// Run calls addr_list(own=true) and reconciles each entry against the
// ledger. A per-address failure is logged and does not block the others.
func (s *Synchronizer) Run(ctx context.Context) error {
	addrs, err := s.node.AddrList(ctx, true)
	if err != nil {
		return fmt.Errorf("addr_list: %w", err)
	}

	for _, a := range addrs {
		if err := s.reconcile(ctx, a); err != nil {
			s.logger.Error("failed to reconcile address", "addressId", a.AddressID, "error", err)
		}
	}
	return nil
}

func (s *Synchronizer) reconcile(ctx context.Context, a noderpc.Address) error {
	exists, err := s.addresses.Exists(a.AddressID)
	if err != nil {
		return err
	}

	if !exists {
		return s.addresses.Insert(store.Address{
			AddressID:  a.AddressID,
			Comment:    a.Comment,
			CreateTime: a.CreateTime,
			Expired:    a.Expired,
			Identity:   a.Identity,
			WalletID:   a.WalletID,
		})
	}

	if err := s.addresses.BackfillIdentity(a.AddressID, a.Identity, a.Comment, a.WalletID); err != nil {
		return fmt.Errorf("backfill identity: %w", err)
	}

	if a.Expired {
		return s.extend(ctx, a.AddressID)
	}
	return nil
}

func (s *Synchronizer) extend(ctx context.Context, addressID string) error {
	if err := s.node.EditAddress(ctx, addressID, neverExpire); err != nil {
		return fmt.Errorf("edit_address: %w", err)
	}
	return s.addresses.MarkExtended(addressID)
}
