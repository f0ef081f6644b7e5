package diego

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Update diego to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := selfUpdate()
			if err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			if v == version {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "diego %s is the latest release\n", version)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Updated to v%s; re-run your command\n", v)
			return err
		},
	})
}
