package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goodcoins/backend/internal/audit"
	"github.com/goodcoins/backend/internal/database"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
	"github.com/spf13/cobra"
)

// ErrDrift is returned when at least one balance disagrees with its ledger.
var ErrDrift = errors.New("balance drift detected")

type reconciler interface {
	ReconcileAll(ctx context.Context) ([]models.Reconciliation, error)
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Bool("all", false, "List consistent children too")
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare every child's balance with the sum of its ledger",
	Long: `Recompute each child's balance from the coin ledger and report any child
whose stored balance differs. Exits non-zero when drift is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := database.Open(ctx, database.GetConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		showAll, _ := cmd.Flags().GetBool("all")
		return runReconcile(ctx, services.NewLedgerService(db, audit.NewLogger()), cmd.OutOrStdout(), showAll)
	},
}

func runReconcile(ctx context.Context, r reconciler, out io.Writer, showAll bool) error {
	report, err := r.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHILD\tBALANCE\tLEDGER\tENTRIES\tSTATUS")

	drifted := 0
	for _, rec := range report {
		status := "ok"
		if !rec.Consistent {
			status = "DRIFT"
			drifted++
		} else if !showAll {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", rec.ChildID, rec.Balance, rec.LedgerSum, rec.Entries, status)
	}
	tw.Flush()

	fmt.Fprintf(out, "%d children checked, %d drifted\n", len(report), drifted)
	if drifted > 0 {
		return ErrDrift
	}
	return nil
}
