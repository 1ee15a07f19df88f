package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Stats summarizes the contract. Connected is false when the bridge could
// not be read.
type Stats struct {
	TotalRecords    uint64 `json:"totalRecords"`
	LastBlockNumber uint64 `json:"lastBlockNumber"`
	ContractAddress string `json:"contractAddress,omitempty"`
	Connected       bool   `json:"isConnected"`
}

// Verification is the result of looking up one entry.
type Verification struct {
	Exists bool    `json:"exists"`
	Data   *Record `json:"data"`
}

// RecordID derives the contract-side key of an entry.
func RecordID(studentID, sessionID string, ts time.Time) string {
	return strconv.FormatUint(xxhash.Sum64String(studentID+"-"+sessionID+"-"+formatTime(ts)), 16)
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// AddAttendanceRecord writes e to the contract.
func (c *Client) AddAttendanceRecord(ctx context.Context, e Entry) (Receipt, error) {
	raw, err := c.Call(ctx, "addAttendanceRecord",
		e.StudentID, e.SessionID, formatTime(e.Timestamp), e.Status, e.PhotoHash)
	if err != nil {
		return Receipt{}, fmt.Errorf("add attendance record: %w", err)
	}
	var res struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	if res.TransactionHash == "" {
		return Receipt{}, ErrNoTransaction
	}
	return Receipt{
		RecordID:      RecordID(e.StudentID, e.SessionID, e.Timestamp),
		TransactionID: res.TransactionHash,
	}, nil
}

// RecordsBySession lists the entries mirrored for a session.
func (c *Client) RecordsBySession(ctx context.Context, sessionID string) ([]Record, error) {
	raw, err := c.Call(ctx, "getAttendanceRecordsBySession", sessionID)
	if err != nil {
		return nil, fmt.Errorf("records by session: %w", err)
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return out, nil
}

// Stats reads contract totals. Any read failure yields a disconnected zero
// value.
func (c *Client) Stats(ctx context.Context) Stats {
	total, err := c.callUint(ctx, "getTotalAttendanceRecords")
	if err != nil {
		return Stats{}
	}
	last, err := c.callUint(ctx, "getLastBlockNumber")
	if err != nil {
		return Stats{}
	}
	return Stats{
		TotalRecords:    total,
		LastBlockNumber: last,
		ContractAddress: c.contract,
		Connected:       true,
	}
}

// Verify looks up one entry. Read failures report a missing entry.
func (c *Client) Verify(ctx context.Context, studentID, sessionID string, ts time.Time) Verification {
	raw, err := c.Call(ctx, "getAttendanceRecord", studentID, sessionID, formatTime(ts))
	if err != nil {
		return Verification{}
	}
	var v Verification
	if err := json.Unmarshal(raw, &v); err != nil || !v.Exists {
		return Verification{}
	}
	return v
}

func (c *Client) callUint(ctx context.Context, method string) (uint64, error) {
	raw, err := c.Call(ctx, method)
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode %s: %w", method, err)
	}
	return n, nil
}
