package noderpc

import "context"

// TxList returns one page of the node's transaction history: up to count
// entries after skipping skip. No sort order is requested; entries come in
// the node's own order.
func (c *Client) TxList(ctx context.Context, count, skip int) ([]Transaction, error) {
	var out []Transaction
	params := map[string]any{"count": count, "skip": skip}
	if err := c.Call(ctx, "tx_list", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WalletStatus returns the node's aggregate per-asset totals.
func (c *Client) WalletStatus(ctx context.Context) (WalletStatus, error) {
	var out WalletStatus
	if err := c.Call(ctx, "wallet_status", nil, &out); err != nil {
		return WalletStatus{}, err
	}
	return out, nil
}

// GetUTXO returns the UTXOs of one asset id.
func (c *Client) GetUTXO(ctx context.Context, assetID int64) ([]UTXO, error) {
	var out []UTXO
	params := map[string]any{
		"count": 0,
		"skip":  0,
		"sort":  map[string]any{"field": "amount", "direction": "asc"},
		"assets": true,
		"filter": map[string]any{"asset_id": assetID},
	}
	if err := c.Call(ctx, "get_utxo", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateAddress checks an address's validity and resolves its wallet
// type, used to determine the applicable fee policy.
func (c *Client) ValidateAddress(ctx context.Context, address string) (ValidateAddressResult, error) {
	var out ValidateAddressResult
	params := map[string]any{"address": address}
	if err := c.Call(ctx, "validate_address", params, &out); err != nil {
		return ValidateAddressResult{}, err
	}
	return out, nil
}

// AddrList returns the node's own addresses when own is true.
func (c *Client) AddrList(ctx context.Context, own bool) ([]Address, error) {
	var out []Address
	params := map[string]any{"own": own}
	if err := c.Call(ctx, "addr_list", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAddress asks the node to mint a new receive address.
func (c *Client) CreateAddress(ctx context.Context, walletType, comment, expiration string) (string, error) {
	var out string
	params := map[string]any{
		"type":       walletType,
		"expiration": expiration,
	}
	if comment != "" {
		params["comment"] = comment
	}
	if err := c.Call(ctx, "create_address", params, &out); err != nil {
		return "", err
	}
	return out, nil
}

// EditAddress updates an existing address, e.g. to extend its expiration.
func (c *Client) EditAddress(ctx context.Context, address, expiration string) error {
	params := map[string]any{"address": address, "expiration": expiration}
	return c.Call(ctx, "edit_address", params, nil)
}

// TxSendParams are the arguments for a withdrawal submission.
type TxSendParams struct {
	Value    int64
	Fee      int64
	Sender   string
	Receiver string
	AssetID  int64
	Comment  string
}

// txSendResult is the node's tx_send result envelope: {"txId": "..."}.
type txSendResult struct {
	TxID string `json:"txId"`
}

// TxSend submits an outgoing transaction and returns the resulting tx id.
func (c *Client) TxSend(ctx context.Context, p TxSendParams) (string, error) {
	var out txSendResult
	params := map[string]any{
		"value":    p.Value,
		"address":  p.Receiver,
		"asset_id": p.AssetID,
		"fee":      p.Fee,
	}
	if p.Sender != "" {
		params["from"] = p.Sender
	}
	if p.Comment != "" {
		params["comment"] = p.Comment
	}
	if err := c.Call(ctx, "tx_send", params, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}

// AssetsList returns the registered asset list, optionally forcing a
// refresh from the network.
func (c *Client) AssetsList(ctx context.Context, refresh bool) ([]Asset, error) {
	var out []Asset
	params := map[string]any{"refresh": refresh}
	if err := c.Call(ctx, "assets_list", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// invokeContractResult is the node's invoke_contract result envelope:
// {"output": "<json-encoded string>"}.
type invokeContractResult struct {
	Output string `json:"output"`
}

// InvokeContract calls a read-only or transacting contract view, used by
// the asset synchronizer to pull DEX liquidity pool state. It returns the
// contract's raw JSON output string, unwrapped from the result envelope.
func (c *Client) InvokeContract(ctx context.Context, args string) (string, error) {
	var out invokeContractResult
	params := map[string]any{
		"args":      args,
		"create_tx": false,
	}
	if err := c.Call(ctx, "invoke_contract", params, &out); err != nil {
		return "", err
	}
	return out.Output, nil
}

// BlockDetails returns details for the block at height.
func (c *Client) BlockDetails(ctx context.Context, height int64) (map[string]any, error) {
	var out map[string]any
	params := map[string]any{"height": height}
	if err := c.Call(ctx, "block_details", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
