package diego

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varalys/diego/internal/scanner/factory"
)

func init() {
	dbCmd := &cobra.Command{Use: "db", Short: "Signature database helpers"}
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(&cobra.Command{
		Use:   "check PATH",
		Short: "Load a signature database into the engine and report the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := factory.New(factory.Config{Database: args[0], Native: scanNative}); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s\n", args[0])
			return err
		},
	})

	dbCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the database directory scans will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ls, gs := cur.Local.GetScan(), cur.Global.GetScan()
			p := pickString("", strPtrOrNil(cur.Env.DBPath), pickPtr(ls.Database, gs.Database))
			if p == "" {
				p = "(engine built-in)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	})
}
