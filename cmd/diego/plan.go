package diego

import (
	"github.com/spf13/cobra"
)

var planOpts struct {
	target targetFlags
	output string
}

func init() {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the cgo link plan for a target without building",
		Long:  "plan prints the cgo link plan for a target without installing or building anything." + windowsKitHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkPlanOutput(planOpts.output); err != nil {
				return err
			}
			t, err := planOpts.target.resolve()
			if err != nil {
				return err
			}
			l, err := layout()
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), newOrchestrator(l, &planOpts.target).Plan(t), planOpts.output)
		},
	}
	planOpts.target.register(cmd)
	cmd.Flags().StringVarP(&planOpts.output, "output", "o", "table", "plan output: env|powershell|json|table|ldflags")
	rootCmd.AddCommand(cmd)
}
