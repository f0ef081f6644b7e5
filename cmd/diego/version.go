package diego

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version and whether the engine is linked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			linked := "not linked (rebuild with -tags die)"
			if engineLinked() {
				linked = "linked"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "diego %s %s/%s\nengine: %s\n", version, runtime.GOOS, runtime.GOARCH, linked)
			return err
		},
	})
}
