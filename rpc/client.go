// Package rpc is a thin JSON-RPC 1.0 client for a Bitcoin Core node. It owns
// the error taxonomy of the adapter layer (connection/auth/protocol/node) and
// performs no retries: a failed call fails the enclosing snapshot or fetch,
// and any retry policy belongs to the caller.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"btcstats/stats"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultTimeout = 30 * time.Second

// maxResponseBytes bounds how much of a response body is read; node stats
// responses are tiny, so anything larger is treated as a protocol violation.
const maxResponseBytes = 8 << 20

// Config describes how to reach a node's RPC endpoint.
type Config struct {
	// Host is host:port without a scheme, matching bitcoind's rpcconnect form.
	Host        string
	UseTLS      bool
	Timeout     time.Duration
	Credentials *Credentials
	Tracker     *stats.Tracker
}

// Client issues JSON-RPC calls over HTTP(S). Construction derives the
// basic-auth header and zeroes the supplied credentials.
type Client struct {
	url        string
	authHeader string
	http       *http.Client
	tracker    *stats.Tracker
	nextID     atomic.Uint64
}

// NewClient creates a client for the given node endpoint.
func NewClient(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("rpc: host is empty")
	}
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		url:        scheme + "://" + host,
		authHeader: cfg.Credentials.basicAuthHeader(),
		http:       &http.Client{Timeout: timeout},
		tracker:    cfg.Tracker,
	}
	cfg.Credentials.Zero()
	return c, nil
}

// Host returns the endpoint with any userinfo stripped, for log messages.
func (c *Client) Host() string {
	return redactHost(strings.TrimPrefix(strings.TrimPrefix(c.url, "https://"), "http://"))
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage   `json:"result"`
	Error  *btcjson.RPCError `json:"error"`
	ID     uint64            `json:"id"`
}

// Call issues a single JSON-RPC call and returns the raw result. Params are
// positional, per the Bitcoin Core interface. The error, if any, is an *Error
// carrying the adapter taxonomy.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	result, err := c.call(ctx, method, params)
	if c.tracker != nil {
		c.tracker.IncrementMethod(method)
		outcome := "ok"
		if err != nil {
			outcome = "unknown"
			if kind, ok := ErrKind(err); ok {
				outcome = kind.String()
			}
		}
		c.tracker.IncrementOutcome(outcome)
	}
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	payload, err := codec.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, newError(KindProtocol, method, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(KindProtocol, method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, newError(KindConnection, method, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, newError(KindAuth, method, fmt.Errorf("node rejected credentials: %s", res.Status))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(KindConnection, method, fmt.Errorf("read response: %w", err))
	}

	var resp rpcResponse
	if err := codec.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindProtocol, method, fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return nil, newError(KindNode, method, resp.Error)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, newError(KindProtocol, method, fmt.Errorf("response carries no result"))
	}
	return resp.Result, nil
}

func (c *Client) callInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(raw, out); err != nil {
		return newError(KindProtocol, method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

// MempoolInfo extends btcjson's result with the fields bitcoind reports that
// btcd's type predates.
type MempoolInfo struct {
	btcjson.GetMempoolInfoResult
	Usage         int64   `json:"usage"`
	MaxMempool    int64   `json:"maxmempool"`
	MempoolMinFee float64 `json:"mempoolminfee"`
}

// GetBlockChainInfo fetches getblockchaininfo.
func (c *Client) GetBlockChainInfo(ctx context.Context) (*btcjson.GetBlockChainInfoResult, error) {
	var out btcjson.GetBlockChainInfoResult
	if err := c.callInto(ctx, &out, "getblockchaininfo"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMempoolInfo fetches getmempoolinfo.
func (c *Client) GetMempoolInfo(ctx context.Context) (*MempoolInfo, error) {
	var out MempoolInfo
	if err := c.callInto(ctx, &out, "getmempoolinfo"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNetworkInfo fetches getnetworkinfo.
func (c *Client) GetNetworkInfo(ctx context.Context) (*btcjson.GetNetworkInfoResult, error) {
	var out btcjson.GetNetworkInfoResult
	if err := c.callInto(ctx, &out, "getnetworkinfo"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Uptime fetches the node uptime in seconds.
func (c *Client) Uptime(ctx context.Context) (int64, error) {
	var out int64
	if err := c.callInto(ctx, &out, "uptime"); err != nil {
		return 0, err
	}
	return out, nil
}

// GetBlockCount fetches the current best block height.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var out int64
	if err := c.callInto(ctx, &out, "getblockcount"); err != nil {
		return 0, err
	}
	return out, nil
}

// GetBlockHash fetches the block hash at the given height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	var out string
	if err := c.callInto(ctx, &out, "getblockhash", height); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(out)
	if err != nil {
		return nil, newError(KindProtocol, "getblockhash", fmt.Errorf("parse hash %q: %w", out, err))
	}
	return hash, nil
}

// GetBlockHeader fetches the verbose header for the given block hash.
func (c *Client) GetBlockHeader(ctx context.Context, hash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error) {
	var out btcjson.GetBlockHeaderVerboseResult
	if err := c.callInto(ctx, &out, "getblockheader", hash.String(), true); err != nil {
		return nil, err
	}
	return &out, nil
}
