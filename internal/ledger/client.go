// Package ledger mirrors attendance records to a smart contract through a
// JSON-RPC bridge. The ledger is advisory: callers treat every failure as
// soft.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Entry is one attendance observation to mirror.
type Entry struct {
	StudentID string
	SessionID string
	Timestamp time.Time
	Status    string
	PhotoHash string
}

// Receipt acknowledges a mirrored entry.
type Receipt struct {
	RecordID      string `json:"recordId"`
	TransactionID string `json:"transactionId"`
}

// Record is an entry as read back from the contract.
type Record struct {
	StudentID       string `json:"studentId"`
	SessionID       string `json:"sessionId"`
	Timestamp       string `json:"timestamp"`
	Status          string `json:"status"`
	PhotoHash       string `json:"photoHash,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Writer mirrors entries. Authorized gates writes on the caller's wallet.
type Writer interface {
	Authorized(wallet string) bool
	AddAttendanceRecord(ctx context.Context, e Entry) (Receipt, error)
}

// Reader lists mirrored entries for a session.
type Reader interface {
	RecordsBySession(ctx context.Context, sessionID string) ([]Record, error)
}

// ErrNoTransaction is returned when the bridge acknowledges a write without
// a transaction hash.
var ErrNoTransaction = errors.New("ledger: missing transaction hash")

// Config holds client configuration.
type Config struct {
	RPCURL   string
	Contract string
	Wallet   string // the only wallet allowed to write
	Timeout  time.Duration
}

// Client talks to the contract bridge.
type Client struct {
	rpcURL     string
	contract   string
	wallet     string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a ledger client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger: RPC URL required")
	}
	if cfg.Contract == "" {
		return nil, fmt.Errorf("ledger: contract address required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		rpcURL:     cfg.RPCURL,
		contract:   cfg.Contract,
		wallet:     cfg.Wallet,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Contract returns the contract address the client targets.
func (c *Client) Contract() string { return c.contract }

// Authorized reports whether wallet matches the configured writer wallet,
// ignoring case.
func (c *Client) Authorized(wallet string) bool {
	return wallet != "" && c.wallet != "" && strings.EqualFold(wallet, c.wallet)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is an error object returned by the bridge.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a contract function. The contract address is always the
// first parameter.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  append([]any{c.contract}, params...),
		ID:      c.nextID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger bridge returned %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
