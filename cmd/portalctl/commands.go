package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/internal/reports/export"
)

func (c *cli) listCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCFT\tCREATED")
			for _, p := range c.app.Portal.List() {
				if status != "" && p.Status != status {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Status, p.Credits(), p.CreatedAt)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show projects with this status")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Print a project as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := c.app.Portal.Get(args[0])
			if err != nil {
				return err
			}
			return c.printJSON(project)
		},
	}
}

func (c *cli) walletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the wallet balance and recent credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := c.app.Reports.Wallet(cmd.Context())
			if err != nil {
				return err
			}
			c.printf("Address:  %s\n", view.Address)
			c.printf("Balance:  %d CFT\n", view.Balance)
			c.printf("Projects: %d CFT across %d projects\n\n", view.TotalCFTFromProjects, len(view.Projects))

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tTYPE\tAMOUNT\tPROJECT")
			for _, tx := range view.RecentTransactions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", tx.Timestamp.Format("2006-01-02 15:04:05"), tx.Type, tx.Amount, tx.ProjectID)
			}
			return w.Flush()
		},
	}
}

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print dashboard aggregates as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(c.app.Reports.Dashboard())
		},
	}
}

func (c *cli) finalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <project-id>",
		Short: "Issue the credits of an analyzed project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Portal.Finalize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Issued {
				c.printf("Project %s restored no carbon; nothing issued.\n", res.ProjectID)
				return nil
			}
			c.printf("Issued %d CFT for %s (token %s, tx %s). Balance: %d\n",
				res.Amount, res.ProjectID, res.NFTTokenID, res.CFTTxHash, res.Balance)
			return nil
		},
	}
}

func (c *cli) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Verify the wallet balance against its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Reconciler.RunOnce(); err != nil {
				return err
			}
			c.printf("Ledger consistent: balance %d\n", c.app.Ledger.Balance())
			return nil
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "export <csv|xlsx>",
		Short:     "Export all projects",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"csv", "xlsx"},
		RunE: func(cmd *cobra.Command, args []string) error {
			write, err := exporter(args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return write(c.out, c.app.Portal.List())
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := write(f, c.app.Portal.List()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			c.printf("Exported %d projects to %s\n", c.app.Portal.Count(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func exporter(format string) (func(io.Writer, []projects.Project) error, error) {
	switch format {
	case "csv":
		return export.WriteProjectsCSV, nil
	case "xlsx":
		return export.WriteProjectsExcel, nil
	}
	return nil, errors.New("unknown export format " + format + ", want csv or xlsx")
}
