package diego

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/varalys/diego/internal/config"
	"github.com/varalys/diego/internal/ignore"
	"github.com/varalys/diego/internal/target"
)

var (
	cfgOutput    string
	cfgTarget    string
	cfgBuildType string
	cfgQtVersion string
	cfgQtLibPath string
	cfgFlags     string
	cfgDatabase  string
	cfgThreads   int
	cfgMaxBytes  int64
	cfgNoColor   bool
	cfgForce     bool
	cfgGitignore bool
)

func init() {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	rootCmd.AddCommand(cfgCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a .diego.yml with build and scan defaults",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	cfgCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&cfgOutput, "output", ".diego.yml", "output file path")
	initCmd.Flags().StringVar(&cfgTarget, "target", "", "default target triple")
	initCmd.Flags().StringVar(&cfgBuildType, "build-type", "release", "default build type: debug|release")
	initCmd.Flags().StringVar(&cfgQtVersion, "qt-version", target.DefaultToolkitVersion, "Qt toolkit version")
	initCmd.Flags().StringVar(&cfgQtLibPath, "qt-lib-path", "", "existing Qt lib directory")
	initCmd.Flags().StringVar(&cfgFlags, "flags", "deep", "default engine scan flags")
	initCmd.Flags().StringVar(&cfgDatabase, "db", "", "signature database directory")
	initCmd.Flags().IntVar(&cfgThreads, "threads", 0, "scan workers (0=GOMAXPROCS)")
	initCmd.Flags().Int64Var(&cfgMaxBytes, "max-bytes", 256<<20, "skip files larger than this")
	initCmd.Flags().BoolVar(&cfgNoColor, "no-color", false, "disable color output by default")
	initCmd.Flags().BoolVar(&cfgForce, "force", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&cfgGitignore, "gitignore", true, "add the state directory to .gitignore next to the config")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the global config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.GlobalPath()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}
	cfgCmd.AddCommand(pathCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if _, err := target.ParseBuildType(cfgBuildType); err != nil {
		return err
	}
	if _, err := scanFlags(cfgFlags, ""); err != nil {
		return err
	}
	if !cfgForce {
		if _, err := os.Stat(cfgOutput); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgOutput)
		}
	}

	fc := config.FileConfig{
		Target:    optStrPtr(cfgTarget),
		BuildType: optStrPtr(cfgBuildType),
		NoColor:   boolPtr(cfgNoColor),
		Toolkit: &config.ToolkitConfig{
			Version: optStrPtr(cfgQtVersion),
			LibPath: optStrPtr(cfgQtLibPath),
		},
		Scan: &config.ScanConfig{
			Flags:    optStrPtr(cfgFlags),
			Database: optStrPtr(cfgDatabase),
			Threads:  intPtr(cfgThreads),
			MaxBytes: int64Ptr(cfgMaxBytes),
		},
	}

	b, err := yaml.Marshal(&fc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgOutput, b, 0644); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Wrote", cfgOutput)
	if cfgGitignore {
		gi := filepath.Join(filepath.Dir(cfgOutput), ".gitignore")
		if err := ignore.AppendPattern(gi, target.DefaultStateDir+"/"); err != nil {
			return fmt.Errorf("update %s: %w", gi, err)
		}
	}
	return nil
}

func optStrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }
