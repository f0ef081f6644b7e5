package diego

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/varalys/diego/internal/nativebuild"
)

var cleanOpts struct {
	target targetFlags
	all    bool
}

func init() {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the engine build and install trees for a target",
		Args:  cobra.NoArgs,
		RunE:  runClean,
	}
	cleanOpts.target.register(cmd)
	cmd.Flags().BoolVar(&cleanOpts.all, "all", false, "remove the whole state directory, toolkit included")
	rootCmd.AddCommand(cmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	l, err := layout()
	if err != nil {
		return err
	}
	if cleanOpts.all {
		if err := os.RemoveAll(l.StateDir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", l.StateDir)
		return nil
	}
	t, err := cleanOpts.target.resolve()
	if err != nil {
		return err
	}
	b := nativebuild.NewBuilder(l, nil, nil)
	if err := b.Clean(t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %s\n", t.Key())
	return nil
}
