package tokenization

import (
	"errors"
	"time"
)

var (
	ErrNotAnalyzed      = errors.New("project has no analysis result")
	ErrAlreadyFinalized = errors.New("project credits already issued")
)

// Manifest is the document pinned for a completed analysis. Its content
// reference becomes the project's ipfsCID.
type Manifest struct {
	ProjectID      string    `json:"projectId"`
	Name           string    `json:"name"`
	AfterImageName string    `json:"afterImageName"`
	HasVegetation  bool      `json:"hasVegetation"`
	CarbonRestored int64     `json:"carbonRestored"`
	Biomass        string    `json:"biomassDetected"`
	Confidence     string    `json:"confidence"`
	AnalyzedAt     time.Time `json:"timestamp"`
}

// FinalizeResult describes the outcome of Finalize. Issued is false when
// the project restored no carbon and nothing was posted.
type FinalizeResult struct {
	ProjectID  string `json:"projectId"`
	Issued     bool   `json:"issued"`
	Amount     int64  `json:"amount"`
	NFTTokenID string `json:"nftTokenId,omitempty"`
	NFTTxHash  string `json:"nftTxHash,omitempty"`
	CFTTxHash  string `json:"cftTxHash,omitempty"`
	Balance    int64  `json:"balance"`
}
