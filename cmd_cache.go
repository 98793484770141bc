package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/kaiwa/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect the audio cache",
		Long:  paragraph(fmt.Sprintf("\nInspect and clear the %s of synthesized clips.", keyword("persistent audio cache"))),
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show disk cache usage",
		Args:  cobra.NoArgs,
		RunE: withDiskCache(func(cmd *cobra.Command, ac *cache.AudioCache) error {
			st, _ := ac.DiskStats()
			writeCacheStats(cmd.OutOrStdout(), st)
			return nil
		}),
	}

	cacheSweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired clips",
		Args:  cobra.NoArgs,
		RunE: withDiskCache(func(cmd *cobra.Command, ac *cache.AudioCache) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired clip(s)\n", ac.Sweep())
			return nil
		}),
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached clip",
		Args:  cobra.NoArgs,
		RunE: withDiskCache(func(cmd *cobra.Command, ac *cache.AudioCache) error {
			before, _ := ac.DiskStats()
			if err := ac.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d clip(s), %s\n", before.ItemCount, humanize.IBytes(uint64(before.Size))) //nolint:gosec
			return nil
		}),
	}
)

// withDiskCache opens the audio cache with its disk tier, whether or not
// drills use it.
func withDiskCache(fn func(*cobra.Command, *cache.AudioCache) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg.Audio.DiskCache = true
		cfg.Audio.SweepInterval = 0
		ac, err := newAudioCache()
		if err != nil {
			return err
		}
		defer ac.Close() //nolint:errcheck
		return fn(cmd, ac)
	}
}

func writeCacheStats(w io.Writer, st cache.Stats) {
	dir, _ := diskCacheDir()
	fmt.Fprintf(w, "Directory: %s\n", dir)
	fmt.Fprintf(w, "Clips:     %d\n", st.ItemCount)
	fmt.Fprintf(w, "Size:      %s of %s\n", humanize.IBytes(uint64(st.Size)), humanize.IBytes(uint64(st.MaxBytes))) //nolint:gosec
	if !st.LastAccess.IsZero() {
		fmt.Fprintf(w, "Last used: %s\n", humanize.Time(st.LastAccess))
	}
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheSweepCmd, cacheClearCmd)
}
