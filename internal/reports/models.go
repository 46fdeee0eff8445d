package reports

import "carbon-scribe/restoration-portal/internal/ledger"

const (
	// TopProjectsLimit caps the projects-vs-CFT chart.
	TopProjectsLimit = 8
	// MonthlyWindow is how many months of restoration the dashboard shows.
	MonthlyWindow = 6
	// RecentTransactionsLimit caps the wallet view transaction list.
	RecentTransactionsLimit = 10
	// UntitledLabel labels chart points for projects without a name.
	UntitledLabel = "Untitled"
)

// ChartPoint is one labelled value.
type ChartPoint struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Dashboard summarizes every project.
type Dashboard struct {
	TotalProjects      int          `json:"totalProjects"`
	TotalCarbon        int64        `json:"totalCarbonRestored"`
	TokensIssued       int          `json:"totalTokensIssued"`
	ProjectsVsCFT      []ChartPoint `json:"projectsVsCft"`
	MonthlyRestoration []ChartPoint `json:"monthlyRestoration"`
	// SkippedRecords counts projects left out of the monthly series because
	// their creation timestamp could not be parsed.
	SkippedRecords int `json:"skippedRecords"`
}

// WalletProject is a project that contributed credits.
type WalletProject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CFTAmount  int64  `json:"cftAmount"`
	NFTTokenID string `json:"nftTokenId,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// WalletView is the community wallet page model.
type WalletView struct {
	Address              string               `json:"address"`
	Balance              int64                `json:"balance"`
	TotalCFTFromProjects int64                `json:"totalCftFromProjects"`
	RecentTransactions   []ledger.Transaction `json:"recentTransactions"`
	Projects             []WalletProject      `json:"projects"`
}
