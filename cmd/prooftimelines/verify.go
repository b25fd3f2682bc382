package main

import (
	"fmt"
	"os"

	"github.com/bcromer77/prooftimelines/internal/infra/bundles"

	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <export.json>",
		Short: "Verify an exported case file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			report, err := bundles.VerifyJSON(payload)
			if err != nil {
				return fmt.Errorf("export invalid: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "case:      %s\n", report.CaseID)
			fmt.Fprintf(out, "events:    %d\n", report.Events)
			fmt.Fprintf(out, "evidence:  %d\n", report.Evidence)
			fmt.Fprintf(out, "ledger:    %d entries, head %d %s\n", report.Entries, report.HeadSequence, report.HeadHash)
			fmt.Fprintf(out, "digest:    %s\n", report.Digest)
			fmt.Fprintln(out, "result:    VALID")
			return nil
		},
	}
}
