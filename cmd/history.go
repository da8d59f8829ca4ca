package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	service "github.com/okian/ttlink/internal/app"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage learned links",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned links, most used first",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, svc *service.Service, _ []string) error {
		printHistory(cmd.OutOrStdout(), svc)
		return nil
	}),
}

var historyExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write history as YAML to FILE or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, svc *service.Service, args []string) error {
		if len(args) == 0 {
			return svc.ExportHistory(cmd.OutOrStdout())
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		if err := svc.ExportHistory(f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}),
}

var importMerge bool

var historyImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load a YAML history export",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, svc *service.Service, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := svc.ImportHistory(cmd.Context(), f, importMerge)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries imported\n", color.GreenString("✓"), n)
		return nil
	}),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete SIGNATURE",
	Short: "Forget one learned link",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, svc *service.Service, args []string) error {
		ok, err := svc.DeleteHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no history entry for %q", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %q\n", color.GreenString("✓"), args[0])
		return nil
	}),
}

func init() {
	historyImportCmd.Flags().BoolVar(&importMerge, "merge", false, "keep existing entries that were used more recently")
	historyCmd.AddCommand(historyListCmd, historyExportCmd, historyImportCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

// withHistory runs fn against a started service without a time tracker or
// AI, stopping it afterwards so changes are flushed.
func withHistory(fn func(*cobra.Command, *service.Service, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.UseAI = false
		svc, err := startService(cmd.Context(), &c, nil)
		if err != nil {
			return err
		}
		runErr := fn(cmd, svc, args)
		if err := svc.Stop(cmd.Context()); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	}
}

func printHistory(out io.Writer, svc *service.Service) {
	entries := svc.History()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no history entries")
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", bold("SIGNATURE"), bold("WORK ITEM"), bold("USES"), bold("LAST USED"))
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s (%s)\t%d\t%s\n", e.Signature, e.WorkItemName, e.WorkItemID, e.UseCount, e.LastUsed.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}
