package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var opts globalOptions
	ctx := newCommandContext(&opts)
	cobra.OnFinalize(ctx.close)

	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Record and manage studio videos locally",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", defaultDataDir(), "Directory holding videos and the metadata database")
	rootCmd.PersistentFlags().StringVarP(&opts.user, "user", "u", defaultUser(), "Local user name owning the videos")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Log to stderr")

	rootCmd.AddCommand(newRecordCommand(ctx))
	rootCmd.AddCommand(newVideosCommand(ctx))
	rootCmd.AddCommand(newQuotaCommand(ctx))
	rootCmd.AddCommand(newTemplatesCommand(ctx))

	return rootCmd
}
