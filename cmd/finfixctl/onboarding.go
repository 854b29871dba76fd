package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finfix/internal/core"
	"finfix/internal/onboarding"
	"finfix/internal/session"
)

func sequencerFor(rawMode string) (*onboarding.Sequencer, error) {
	mode, err := session.ParseMode(rawMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, rawMode)
	}
	return onboarding.NewSequencer(mode.LandingPath()), nil
}

// newResolveCmd answers where a user with the given summary lands when
// opening path.
func newResolveCmd() *cobra.Command {
	var summaryFile, path, mode string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Decide where a user with the given summary belongs in the wizard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seq, err := sequencerFor(mode)
			if err != nil {
				return err
			}
			var summary core.Summary
			if summaryFile != "" {
				data, err := os.ReadFile(summaryFile)
				if err != nil {
					return fmt.Errorf("read summary: %w", err)
				}
				if err := json.Unmarshal(data, &summary); err != nil {
					return fmt.Errorf("parse summary: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), seq.Resolve(summary, path))
			return nil
		},
	}
	cmd.Flags().StringVar(&summaryFile, "summary", "", "JSON file holding the backend summary (empty summary when omitted)")
	cmd.Flags().StringVar(&path, "path", onboarding.RootPath, "route the user is opening")
	cmd.Flags().StringVar(&mode, "mode", string(session.ModeAdmin), "application mode: admin or pwa")
	return cmd
}

func newStepsCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the wizard steps with their routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seq, err := sequencerFor(mode)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tPATH\tNEXT\tPROGRESS\tOPTIONAL")
			for _, d := range seq.Steps() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%t\n", d.Step, d.Path(), seq.NextPath(d.Step), seq.Progress(d.Step), d.Optional)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(session.ModeAdmin), "application mode: admin or pwa")
	return cmd
}

// newCheckDateCmd runs raw input through the installment date mask and
// validation, as the wizard does on blur.
func newCheckDateCmd() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "check-date <raw>",
		Short: "Validate an installment start date the way the wizard does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if today != "" {
				t, err := time.Parse(time.DateOnly, today)
				if err != nil {
					return fmt.Errorf("parse --today: %w", err)
				}
				now = t
			}
			masked := onboarding.FormatDateMask(args[0])
			date, err := onboarding.ParseDateText(masked, now)
			if err != nil {
				return fmt.Errorf("%s: %s", masked, onboarding.DateErrorMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", masked, date.ISO())
			return nil
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "reference date as YYYY-MM-DD (default: now)")
	return cmd
}
