package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aura-webinar/videocreator/internal/quota"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Show storage usage and tier limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.open()
			if err != nil {
				return err
			}
			lib, err := env.library(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"", ""}, buildQuotaRows(lib.Stats()), []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	quotaCmd.AddCommand(newQuotaUpgradeCommand(ctx))
	return quotaCmd
}

func buildQuotaRows(s quota.Stats) [][]string {
	return [][]string{
		{"Tier", string(s.Tier)},
		{"Videos", fmt.Sprintf("%d / %d", s.VideoCount, s.MaxVideos)},
		{"Storage", fmt.Sprintf("%s / %s", humanize.IBytes(uint64(s.UsedBytes)), humanize.IBytes(uint64(s.MaxBytes)))},
		{"Storage used", fmt.Sprintf("%.1f%%", s.StoragePercentage)},
		{"Max duration", fmt.Sprintf("%ds", s.MaxDurationSeconds)},
	}
}

func newQuotaUpgradeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <tier>",
		Short: "Switch to another tier (FREE or PREMIUM)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.open()
			if err != nil {
				return err
			}
			lib, err := env.library(cmd.Context())
			if err != nil {
				return err
			}
			q, err := lib.UpgradeTier(cmd.Context(), quota.TierName(strings.ToUpper(args[0])))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tier is now %s\n", q.Tier)
			return nil
		},
	}
}
