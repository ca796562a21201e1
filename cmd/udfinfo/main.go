package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/s0up4200/go-udfvfs/internal/logging"
	"github.com/s0up4200/go-udfvfs/internal/settings"
)

var version = "dev"

const repoSlug = "s0up4200/go-udfvfs"

var log = logging.Component("udfinfo")

type rootOptions struct {
	logLevel      string
	foldCase      bool
	maxReadBlocks int
	human         bool
	long          bool
	allowOther    bool
	selfUpdate    bool

	settings settings.Settings
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "udfinfo",
		Short:         "Inspect and read UDF disc images.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.selfUpdate {
				return runSelfUpdate(cmd.Context(), cmd)
			}
			return cmd.Help()
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update udfinfo",
		Long:  "Update udfinfo to latest version (release builds only).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd.Context(), cmd)
		},
		DisableFlagsInUseLine: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "udfinfo version: %s\n", version)
			return nil
		},
		DisableFlagsInUseLine: true,
	}

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level (error, warn, info, debug, trace)")
	pf.BoolVarP(&opts.foldCase, "fold-case", "i", false, "Match path components case-insensitively")
	pf.IntVar(&opts.maxReadBlocks, "max-read-blocks", 512, "Largest number of blocks fetched per device read")
	pf.BoolVarP(&opts.human, "human", "H", true, "Print sizes in human readable units (use --human=false for bytes)")
	rootCmd.Flags().BoolVar(&opts.selfUpdate, "self-update", false, "Update udfinfo to latest version (release builds only)")

	rootCmd.AddCommand(
		newLsCmd(opts),
		newCatCmd(opts),
		newStatCmd(opts),
		newTreeCmd(opts),
		newExtractCmd(opts),
		newMountCmd(opts),
		newDebugCmd(opts),
		updateCmd,
		versionCmd,
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "udfinfo: %s\n", err.Error())
		os.Exit(1)
	}
}

// load applies the flags the user set on top of the defaults.
func (o *rootOptions) load(cmd *cobra.Command) error {
	s := settings.Default()

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.LogLevel = o.logLevel
	}
	if flags.Changed("fold-case") {
		s.FoldCase = o.foldCase
	}
	if flags.Changed("max-read-blocks") {
		if o.maxReadBlocks <= 0 {
			return fmt.Errorf("--max-read-blocks must be positive, got %d", o.maxReadBlocks)
		}
		s.MaxReadBlocks = o.maxReadBlocks
	}
	if flags.Changed("human") {
		s.HumanSizes = o.human
	}
	if flags.Changed("allow-other") {
		s.AllowOther = o.allowOther
	}

	if err := logging.SetLevel(s.LogLevel); err != nil {
		return err
	}
	o.settings = s
	return nil
}

func runSelfUpdate(ctx context.Context, cmd *cobra.Command) error {
	if version == "" || version == "dev" {
		return errors.New("self-update is only available in release builds")
	}

	if _, err := semver.ParseTolerant(version); err != nil {
		return fmt.Errorf("could not parse version: %w", err)
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s/%s could not be found from github repository", repoSlug, version)
	}

	out := cmd.OutOrStdout()
	if latest.LessOrEqual(version) {
		fmt.Fprintf(out, "Current binary is the latest version: %s\n", version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version: %s\n", latest.Version())
	return nil
}
