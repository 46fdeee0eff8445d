package tokenization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/ledger"
	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/pkg/storage"
)

// Identifiers generates token ids and transaction references.
type Identifiers interface {
	TokenID(now time.Time) string
	TxRef() string
}

// Service assigns content and token identifiers to analyzed projects and
// issues their credits to the ledger.
type Service struct {
	projects *projects.Store
	ledger   *ledger.Store
	ids      Identifiers
	pinner   storage.IPFSClient
	logger   *zap.Logger
	now      func() time.Time

	// mu serializes Finalize so a project cannot be credited twice.
	mu sync.Mutex
}

func NewService(
	projectStore *projects.Store,
	ledgerStore *ledger.Store,
	ids Identifiers,
	pinner storage.IPFSClient,
	logger *zap.Logger,
) *Service {
	return &Service{
		projects: projectStore,
		ledger:   ledgerStore,
		ids:      ids,
		pinner:   pinner,
		logger:   logger,
		now:      time.Now,
	}
}

// Assign pins the analysis manifest and, when carbon was restored, issues a
// token id. It returns the fields to merge into the completion write.
func (s *Service) Assign(ctx context.Context, project projects.Project, result projects.AnalysisResult) (projects.Patch, error) {
	manifest := Manifest{
		ProjectID:      project.ID,
		Name:           project.Name,
		AfterImageName: result.AfterImageName,
		HasVegetation:  result.HasVegetation,
		CarbonRestored: result.CarbonRestored,
		Biomass:        result.BiomassDetected.String(),
		Confidence:     result.Confidence.String(),
		AnalyzedAt:     result.Timestamp,
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return projects.Patch{}, fmt.Errorf("failed to encode manifest: %w", err)
	}

	cid, err := s.pinner.PinFile(ctx, bytes.NewReader(body))
	if err != nil {
		return projects.Patch{}, fmt.Errorf("failed to pin manifest: %w", err)
	}

	patch := projects.Patch{IPFSCID: &cid}
	if result.CarbonRestored > 0 {
		token := s.ids.TokenID(s.now())
		patch.NFTTokenID = &token
	}

	s.logger.Info("Identifiers assigned",
		zap.String("project_id", project.ID),
		zap.String("ipfs_cid", cid))
	return patch, nil
}

// Finalize records the mint and issuance transaction references on the
// project and credits the restored carbon to the wallet. Projects without
// restored carbon are left untouched.
func (s *Service) Finalize(ctx context.Context, projectID string) (*FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects.Get(projectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", projects.ErrNotFound, projectID)
	}
	if project.Analysis == nil || !project.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", ErrNotAnalyzed, projectID)
	}
	if project.IsFinalized() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFinalized, projectID)
	}

	amount := project.Analysis.CarbonRestored
	if amount <= 0 {
		s.logger.Info("No carbon restored, nothing to issue", zap.String("project_id", projectID))
		return &FinalizeResult{ProjectID: projectID, Balance: s.ledger.Balance()}, nil
	}

	nftTx := s.ids.TxRef()
	cftTx := s.ids.TxRef()
	patch := projects.Patch{NFTTxHash: &nftTx, CFTTxHash: &cftTx}
	tokenID := project.NFTTokenID
	if tokenID == "" {
		tokenID = s.ids.TokenID(s.now())
		patch.NFTTokenID = &tokenID
	}
	if err := s.projects.Update(ctx, projectID, patch); err != nil {
		return nil, err
	}

	err := s.ledger.Credit(ctx, ledger.Transaction{
		Type:      ledger.TransactionTypeCFTIssued,
		Amount:    amount,
		Timestamp: s.now().UTC(),
		ProjectID: projectID,
	})
	if err != nil {
		empty := ""
		revert := projects.Patch{NFTTxHash: &empty, CFTTxHash: &empty}
		if patch.NFTTokenID != nil {
			revert.NFTTokenID = &empty
		}
		if rerr := s.projects.Update(ctx, projectID, revert); rerr != nil {
			s.logger.Error("Failed to revert transaction references",
				zap.String("project_id", projectID),
				zap.Error(rerr))
		}
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	s.logger.Info("Credits issued",
		zap.String("project_id", projectID),
		zap.Int64("amount", amount),
		zap.String("cft_tx_hash", cftTx))

	return &FinalizeResult{
		ProjectID:  projectID,
		Issued:     true,
		Amount:     amount,
		NFTTokenID: tokenID,
		NFTTxHash:  nftTx,
		CFTTxHash:  cftTx,
		Balance:    s.ledger.Balance(),
	}, nil
}
