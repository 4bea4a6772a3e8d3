package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/econ/internal/app/dispatch"
	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/domain"
)

// ─── Economy CLI ────────────────────────────────────────────────────────────
// Operator commands against the configured store. They share the engine with
// the server, so running them next to a live SQLite or JSON store is safe only
// when the server is stopped.

func init() {
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(leaderboardCmd)

	execCmd.Flags().String("request-id", "", "Idempotency key (default: random)")
	execCmd.Flags().Bool("json", false, "Print the raw result as JSON")
	accountCmd.Flags().IntP("history", "n", 10, "Number of transactions to show")
	leaderboardCmd.Flags().IntP("top", "n", 0, "Entries to show (default leaderboard.top_n)")
}

// ─── exec ───────────────────────────────────────────────────────────────────

var execCmd = &cobra.Command{
	Use:   "exec USER ACTION [ARGS...]",
	Short: "Run one economy command as USER",
	Long: `Run one chat command through the dispatcher, exactly as a bot adapter
would. Examples:

  econ exec alice work
  econ exec alice transfer bob 250
  econ exec alice clan create Night Owls`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	reqID, _ := cmd.Flags().GetString("request-id")
	asJSON, _ := cmd.Flags().GetBool("json")

	res := a.dispatcher.Dispatch(cmd.Context(), dispatch.Command{
		RequestID: reqID,
		UserID:    args[0],
		Action:    args[1],
		Args:      args[2:],
	})
	return printResult(cmd.OutOrStdout(), res, asJSON)
}

func printResult(w io.Writer, res dispatch.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Success {
		fmt.Fprintf(w, "✅ %s\n", res.Action)
		keys := make([]string, 0, len(res.Fields))
		for k := range res.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "   %-14s %v\n", k, res.Fields[k])
		}
	}
	if !res.Success {
		if res.RemainingSeconds > 0 {
			return fmt.Errorf("%s: %s (retry in %ds)", res.ErrorKind, res.Error, res.RemainingSeconds)
		}
		return fmt.Errorf("%s: %s", res.ErrorKind, res.Error)
	}
	return nil
}

// ─── account ────────────────────────────────────────────────────────────────

var accountCmd = &cobra.Command{
	Use:   "account USER",
	Short: "Show a user's balances, stats and recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccount,
}

func runAccount(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	userID := args[0]
	acct, err := ledger.View(cmd.Context(), a.engine, func(tx domain.Tx) (domain.Account, error) {
		return tx.Account(userID)
	})
	if errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("no account for %q yet", userID)
	}
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("history")
	recs, err := a.engine.Records(cmd.Context(), userID, n)
	if err != nil {
		return err
	}

	sym := a.engine.Rules().CurrencySymbol
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  (%s)\n", acct.UserID, acct.Rank().Name)
	fmt.Fprintf(w, "  Wallet:  %s %d\n", sym, acct.Wallet)
	fmt.Fprintf(w, "  Bank:    %s %d\n", sym, acct.Bank)
	fmt.Fprintf(w, "  Total:   %s %d\n", sym, acct.Total())
	fmt.Fprintf(w, "  Earned:  %d   Spent: %d\n", acct.TotalEarned, acct.TotalSpent)
	fmt.Fprintf(w, "  Work: %d   Daily: %d (streak %d, best %d)   Robs: %d\n",
		acct.WorkCount, acct.DailyCount, acct.Streak, acct.LongestStreak, acct.RobCount)
	if acct.ClanID != "" {
		fmt.Fprintf(w, "  Clan:    %s\n", acct.ClanID)
	}

	if len(recs) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tENTRY\tAMOUNT\tBALANCE\tCOUNTERPARTY")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04"), r.Kind, r.Entry, r.Amount, r.BalanceAfter, r.CounterpartyID)
	}
	return tw.Flush()
}

// ─── leaderboard ────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the richest users",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, _ := cmd.Flags().GetInt("top")
	entries, err := a.board.Top(cmd.Context(), n)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No accounts yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUSER\tTOTAL\tWALLET\tBANK\tRANK")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n", e.Position, e.UserID, e.Total, e.Wallet, e.Bank, e.Rank)
	}
	return tw.Flush()
}
