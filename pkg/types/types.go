// Package types contains public API types for the batch sender.
// These types form the external interface and must remain backwards-compatible.
package types

import "time"

// TransferMode selects what kind of value transfer each account sends.
type TransferMode string

const (
	ModeNative TransferMode = "native"
	ModeToken  TransferMode = "token"
)

// DispatchStatus is the terminal state of one account's dispatch attempt chain.
type DispatchStatus string

const (
	StatusPending      DispatchStatus = "pending"
	StatusConfirmed    DispatchStatus = "confirmed"
	StatusReverted     DispatchStatus = "reverted"
	StatusTimeout      DispatchStatus = "timeout"
	StatusSubmitFailed DispatchStatus = "submit_failed"
)

// Terminal reports whether the status ends an account's dispatch.
func (s DispatchStatus) Terminal() bool {
	return s != StatusPending
}

// ConsumedNonce reports whether the transaction was included on chain,
// meaning the sender's nonce advanced regardless of execution outcome.
func (s DispatchStatus) ConsumedNonce() bool {
	return s == StatusConfirmed || s == StatusReverted
}

// BackoffKind selects the retry delay policy between dispatch attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
	BackoffJittered    BackoffKind = "jittered"
)

// DispatchResult is the outcome of one account's dispatch.
type DispatchResult struct {
	Address     string         `json:"address"`
	TxHash      string         `json:"txHash,omitempty"`
	Nonce       uint64         `json:"nonce"`
	Status      DispatchStatus `json:"status"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
	Attempts    int            `json:"attempts"`
	Error       string         `json:"error,omitempty"`
	FinishedAt  time.Time      `json:"finishedAt"`
}

// BatchSummary aggregates the outcome of one dispatch run.
type BatchSummary struct {
	RunID        string    `json:"runId"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	Mode         string    `json:"mode"`
	KeysLoaded   int       `json:"keysLoaded"`
	KeysRejected int       `json:"keysRejected"`
	Accounts     int       `json:"accounts"`
	Confirmed    int       `json:"confirmed"`
	Reverted     int       `json:"reverted"`
	TimedOut     int       `json:"timedOut"`
	Failed       int       `json:"failed"`
}
