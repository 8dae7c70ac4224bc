package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ReelRelay/internal/app"
	"ReelRelay/internal/infrastructure/scheduler"
	"ReelRelay/internal/usecase"
)

const recentLimit = 5

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgHiGreen)
	failureColor = color.New(color.FgRed)
	mutedColor   = color.New(color.FgWhite, color.Italic)
)

func newRunOnceCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once [count]",
		Short: "Run the pipeline a single time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("count must be a positive integer, got %q", args[0])
				}
				count = n
			}

			return rt.open(cmd.Context(), func(a *app.Application) error {
				summary, err := a.RunOnce(cmd.Context(), count)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				headerColor.Fprintln(out, "Run finished")
				fmt.Fprintln(out, usecase.FormatSummary(summary))
				if summary.Failed > 0 {
					failureColor.Fprintf(out, "%d video(s) failed\n", summary.Failed)
				}
				return nil
			})
		},
	}
}

func newStartCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the pipeline on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mutedColor.Fprintf(cmd.OutOrStdout(), "Schedule: %s (%s), %d video(s) per run\n",
				rt.cfg.Scheduler.CronExpression,
				scheduler.Describe(rt.cfg.Scheduler.CronExpression),
				rt.cfg.Scheduler.VideosPerRun)

			return rt.open(cmd.Context(), func(a *app.Application) error {
				return a.Start(cmd.Context())
			})
		},
	}
}

func newStatsCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store counts and the most recent uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.open(cmd.Context(), func(a *app.Application) error {
				stats, err := a.Stats(cmd.Context())
				if err != nil {
					return err
				}
				recent, err := a.Recent(cmd.Context(), recentLimit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				headerColor.Fprintln(out, "Videos")
				fmt.Fprintf(out, "  total     %s\n", humanize.Comma(int64(stats.Total)))
				fmt.Fprintf(out, "  pending   %s\n", humanize.Comma(int64(stats.Pending)))
				fmt.Fprintf(out, "  ready     %s\n", humanize.Comma(int64(stats.Ready)))
				successColor.Fprintf(out, "  uploaded  %s\n", humanize.Comma(int64(stats.Uploaded)))
				failureColor.Fprintf(out, "  failed    %s\n", humanize.Comma(int64(stats.Failed)))

				headerColor.Fprintln(out, "Recent uploads")
				if len(recent) == 0 {
					mutedColor.Fprintln(out, "  none yet")
				}
				for _, r := range recent {
					when := ""
					if r.UploadedAt != nil {
						when = humanize.Time(*r.UploadedAt)
					}
					fmt.Fprintf(out, "  %s  %s  %s\n", r.RemoteID, r.GeneratedTitle, mutedColor.Sprint(when))
				}
				return nil
			})
		},
	}
}

func newValidateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and remote credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if err := rt.cfg.Validate(); err != nil {
				failureColor.Fprintln(out, err.Error())
				return err
			}

			return rt.open(cmd.Context(), func(a *app.Application) error {
				report, err := a.Validate(cmd.Context())
				if err != nil {
					failureColor.Fprintln(out, err.Error())
					return err
				}
				successColor.Fprintf(out, "Facebook page %s (%s)\n", report.PageName, report.PageID)
				if report.TelegramBot != "" {
					successColor.Fprintf(out, "Telegram bot @%s -> %s\n", report.TelegramBot, report.TelegramChat)
				} else {
					mutedColor.Fprintln(out, "Telegram notifications disabled")
				}
				return nil
			})
		},
	}
}
