package main

import (
	"fmt"
	"os"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	PersistentPreRun:      func(*cobra.Command, []string) {},
	RunE: func(*cobra.Command, []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("unable to generate man page: %w", err)
		}

		manPage = manPage.WithSection("Environment", "KAIWA_PROFILE selects the settings profile. "+
			"Every config key can be overridden with KAIWA_<GROUP>_<KEY>, for example KAIWA_AUDIO_CACHE_SIZE_MB. "+
			"KAIWA_DEBUG enables the debug log.")
		manPage = manPage.WithSection("Bugs", "Report bugs on the project issue tracker.")

		_, err = fmt.Fprint(os.Stdout, manPage.Build(roff.NewDocument()))
		return err //nolint:wrapcheck
	},
}
