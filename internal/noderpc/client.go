// Package noderpc is a thin JSON-RPC 2.0 client for the wallet node.
// It performs stateless HTTP POSTs and applies no retry policy of its
// own; callers decide whether and how to retry.
package noderpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vsnation/beamgate/internal/gatewayerr"
)

const defaultTimeout = 5 * time.Second

// Client talks to a single wallet node endpoint. It is safe for concurrent
// use by multiple workers; its only mutable state is an atomically
// incremented request id and the underlying *http.Client's connection pool.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     func() uint64
}

// New builds a Client bound to url with a default 5s per-call timeout.
func New(url string) *Client {
	var id atomic.Uint64
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		nextID: func() uint64 {
			return id.Add(1)
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Assets json.RawMessage `json:"assets"`
	Error  *rpcError       `json:"error"`
}

// Call performs one JSON-RPC round trip and unmarshals the "result" field
// (or the "assets" field, used only by assets_list) into out.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return gatewayerr.NewTransportError(method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gatewayerr.NewTransportError(method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return gatewayerr.NewTransportError(method, fmt.Errorf("http status %d", resp.StatusCode))
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return gatewayerr.NewTransportError(method, fmt.Errorf("decode response: %w", err))
	}

	if decoded.Error != nil {
		return &gatewayerr.RPCError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}

	if out == nil {
		return nil
	}

	payload := decoded.Result
	if len(payload) == 0 && len(decoded.Assets) > 0 {
		payload = decoded.Assets
	}
	if len(payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}
