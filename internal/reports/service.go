package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/ledger"
	"carbon-scribe/restoration-portal/internal/projects"
)

// ProjectLister returns project snapshots, newest first.
type ProjectLister interface {
	List() []projects.Project
	Get(id string) (projects.Project, bool)
}

// WalletReader exposes the ledger state needed by the wallet view.
type WalletReader interface {
	Wallet(ctx context.Context) (ledger.Wallet, error)
	RecentCredits(n int) []ledger.Transaction
}

// Service builds read-only views over projects and the wallet.
type Service struct {
	projects ProjectLister
	wallet   WalletReader
	logger   *zap.Logger
}

func NewService(projectLister ProjectLister, wallet WalletReader, logger *zap.Logger) *Service {
	return &Service{projects: projectLister, wallet: wallet, logger: logger}
}

// Dashboard aggregates project totals, the top projects by credits and the
// monthly restoration series. Records with an unparsable creation time are
// skipped by the monthly series and counted in SkippedRecords.
func (s *Service) Dashboard() Dashboard {
	return s.dashboard(s.projects.List())
}

func (s *Service) dashboard(list []projects.Project) Dashboard {
	d := Dashboard{
		TotalProjects:      len(list),
		ProjectsVsCFT:      []ChartPoint{},
		MonthlyRestoration: []ChartPoint{},
	}

	type month struct {
		key   string
		label string
		value int64
	}
	months := map[string]*month{}

	for i := range list {
		p := &list[i]
		credits := p.Credits()
		d.TotalCarbon += credits
		if p.NFTTokenID != "" {
			d.TokensIssued++
		}
		if credits <= 0 {
			continue
		}

		label := p.Name
		if label == "" {
			label = UntitledLabel
		}
		d.ProjectsVsCFT = append(d.ProjectsVsCFT, ChartPoint{Label: label, Value: credits})

		created, err := p.CreatedTime()
		if errors.Is(err, projects.ErrInvalidTimestamp) {
			d.SkippedRecords++
			s.logger.Debug("Skipping project with invalid timestamp",
				zap.String("project_id", p.ID),
				zap.String("created_at", p.CreatedAt))
			continue
		}
		created = created.UTC()
		key := created.Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &month{key: key, label: created.Format("Jan 2006")}
			months[key] = m
		}
		m.value += credits
	}

	sort.SliceStable(d.ProjectsVsCFT, func(i, j int) bool {
		return d.ProjectsVsCFT[i].Value > d.ProjectsVsCFT[j].Value
	})
	if len(d.ProjectsVsCFT) > TopProjectsLimit {
		d.ProjectsVsCFT = d.ProjectsVsCFT[:TopProjectsLimit]
	}

	ordered := make([]*month, 0, len(months))
	for _, m := range months {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].key < ordered[j].key })
	if len(ordered) > MonthlyWindow {
		ordered = ordered[len(ordered)-MonthlyWindow:]
	}
	for _, m := range ordered {
		d.MonthlyRestoration = append(d.MonthlyRestoration, ChartPoint{Label: m.label, Value: m.value})
	}

	return d
}

// Wallet builds the wallet view: balance, recent credits and the projects
// that contributed credits, newest first. Projects with an unparsable
// creation time sort last.
func (s *Service) Wallet(ctx context.Context) (WalletView, error) {
	w, err := s.wallet.Wallet(ctx)
	if err != nil {
		return WalletView{}, fmt.Errorf("failed to load wallet: %w", err)
	}

	view := WalletView{
		Address:            w.Address,
		Balance:            w.Balance,
		RecentTransactions: s.wallet.RecentCredits(RecentTransactionsLimit),
		Projects:           []WalletProject{},
	}

	type dated struct {
		project WalletProject
		created time.Time
		valid   bool
	}
	var contributing []dated
	for _, p := range s.projects.List() {
		credits := p.Credits()
		view.TotalCFTFromProjects += credits
		if credits <= 0 {
			continue
		}
		created, err := p.CreatedTime()
		contributing = append(contributing, dated{
			project: WalletProject{
				ID:         p.ID,
				Name:       p.Name,
				CFTAmount:  credits,
				NFTTokenID: p.NFTTokenID,
				CreatedAt:  p.CreatedAt,
			},
			created: created,
			valid:   err == nil,
		})
	}

	sort.SliceStable(contributing, func(i, j int) bool {
		a, b := contributing[i], contributing[j]
		if a.valid != b.valid {
			return a.valid
		}
		return a.created.After(b.created)
	})
	for _, c := range contributing {
		view.Projects = append(view.Projects, c.project)
	}

	return view, nil
}
