package projects

import (
	"time"

	"github.com/shopspring/decimal"

	"carbon-scribe/restoration-portal/pkg/workflows"
)

// DefaultName is used when a submission carries no name.
const DefaultName = "Untitled Project"

// ImageRef is metadata about an uploaded image. Content is never inspected.
type ImageRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// AnalysisResult is the outcome of a vegetation analysis run.
type AnalysisResult struct {
	HasVegetation   bool            `json:"hasVegetation"`
	BiomassDetected decimal.Decimal `json:"biomassDetected"` // tons
	CarbonRestored  int64           `json:"carbonRestored"`  // CFT
	Confidence      decimal.Decimal `json:"confidence"`      // percent
	AfterImageName  string          `json:"afterImageName"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Project represents a restoration project moving through
// pending -> analyzing -> completed.
type Project struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	BeforeImage     *ImageRef        `json:"beforeImage,omitempty"`
	AfterImage      *ImageRef        `json:"afterImage,omitempty"`
	Status          string           `json:"status"`
	Analysis        *AnalysisResult  `json:"analysis,omitempty"`
	FailureReason   string           `json:"failureReason,omitempty"`
	CarbonFootprint *decimal.Decimal `json:"carbonFootprint,omitempty"` // tCO2e
	CFTAmount       *int64           `json:"cftAmount,omitempty"`
	IPFSCID         string           `json:"ipfsCID,omitempty"`
	NFTTokenID      string           `json:"nftTokenId,omitempty"`
	NFTTxHash       string           `json:"nftTxHash,omitempty"`
	CFTTxHash       string           `json:"cftTxHash,omitempty"`
	// CreatedAt is kept as persisted text so that records with a damaged
	// timestamp still load; use CreatedTime to interpret it.
	CreatedAt string `json:"createdAt"`
}

// CreatedTime parses CreatedAt. It returns ErrInvalidTimestamp when the
// stored value is not an RFC 3339 instant.
func (p *Project) CreatedTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, p.CreatedAt)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return t, nil
}

// Credits returns the issued CFT amount, or zero.
func (p *Project) Credits() int64 {
	if p.CFTAmount == nil {
		return 0
	}
	return *p.CFTAmount
}

// IsFinalized reports whether credits for the project were already posted.
func (p *Project) IsFinalized() bool {
	return p.CFTTxHash != ""
}

// IsCompleted reports whether the analysis finished successfully.
func (p *Project) IsCompleted() bool {
	return p.Status == workflows.StatusCompleted
}

// Clone returns a deep copy so callers cannot mutate store-owned records.
func (p *Project) Clone() Project {
	c := *p
	if p.BeforeImage != nil {
		img := *p.BeforeImage
		c.BeforeImage = &img
	}
	if p.AfterImage != nil {
		img := *p.AfterImage
		c.AfterImage = &img
	}
	if p.Analysis != nil {
		a := *p.Analysis
		c.Analysis = &a
	}
	if p.CarbonFootprint != nil {
		f := *p.CarbonFootprint
		c.CarbonFootprint = &f
	}
	if p.CFTAmount != nil {
		n := *p.CFTAmount
		c.CFTAmount = &n
	}
	return c
}

// CreateRequest is a project submission.
type CreateRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	BeforeImage *ImageRef `json:"beforeImage"`
	AfterImage  *ImageRef `json:"afterImage"`
}

// Patch holds the fields to merge into a project; nil fields are left alone.
type Patch struct {
	Name            *string
	Description     *string
	Status          *string
	Analysis        *AnalysisResult
	FailureReason   *string
	CarbonFootprint *decimal.Decimal
	CFTAmount       *int64
	IPFSCID         *string
	NFTTokenID      *string
	NFTTxHash       *string
	CFTTxHash       *string
}

func (p Patch) apply(project *Project) {
	if p.Name != nil {
		project.Name = *p.Name
	}
	if p.Description != nil {
		project.Description = *p.Description
	}
	if p.Status != nil {
		project.Status = *p.Status
	}
	if p.Analysis != nil {
		a := *p.Analysis
		project.Analysis = &a
	}
	if p.FailureReason != nil {
		project.FailureReason = *p.FailureReason
	}
	if p.CarbonFootprint != nil {
		f := *p.CarbonFootprint
		project.CarbonFootprint = &f
	}
	if p.CFTAmount != nil {
		n := *p.CFTAmount
		project.CFTAmount = &n
	}
	if p.IPFSCID != nil {
		project.IPFSCID = *p.IPFSCID
	}
	if p.NFTTokenID != nil {
		project.NFTTokenID = *p.NFTTokenID
	}
	if p.NFTTxHash != nil {
		project.NFTTxHash = *p.NFTTxHash
	}
	if p.CFTTxHash != nil {
		project.CFTTxHash = *p.CFTTxHash
	}
}
