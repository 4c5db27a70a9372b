// Package storage persists dispatch run history.
package storage

import (
	"context"
	"time"

	"github.com/gateway-fm/batchsender/pkg/types"
)

// Run is one batch dispatch run.
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Mode         string     `json:"mode"`
	Recipient    string     `json:"recipient"`
	KeysLoaded   int        `json:"keysLoaded"`
	KeysRejected int        `json:"keysRejected"`
	Accounts     int        `json:"accounts"`
	Confirmed    int        `json:"confirmed"`
	Reverted     int        `json:"reverted"`
	TimedOut     int        `json:"timedOut"`
	Failed       int        `json:"failed"`
	Status       string     `json:"status"` // running | completed | aborted
}

// TxRecord is one account's terminal dispatch outcome within a run.
type TxRecord struct {
	RunID       string               `json:"runId"`
	Address     string               `json:"address"`
	TxHash      string               `json:"txHash,omitempty"`
	Nonce       uint64               `json:"nonce"`
	Status      types.DispatchStatus `json:"status"`
	BlockNumber uint64               `json:"blockNumber,omitempty"`
	Attempts    int                  `json:"attempts"`
	Error       string               `json:"error,omitempty"`
	FinishedAt  time.Time            `json:"finishedAt"`
}

// Storage defines the persistence interface for the dispatch journal.
type Storage interface {
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, run *Run) error
	// GetRun returns nil with no error when the run does not exist.
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)

	RecordTx(ctx context.Context, runID string, result types.DispatchResult) error
	ListTxs(ctx context.Context, runID string, limit, offset int) ([]TxRecord, error)

	Close() error
}
