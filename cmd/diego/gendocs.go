package diego

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varalys/diego/pkg/die"
)

const (
	flagsBegin = "<!-- BEGIN:SCAN_FLAGS -->"
	flagsEnd   = "<!-- END:SCAN_FLAGS -->"
)

var flagDocs = map[string]string{
	"deep":      "scan the whole file, not only the entry point",
	"heuristic": "run heuristic signatures",
	"alltypes":  "report every recognized file type",
	"recursive": "descend into overlays and resources",
	"verbose":   "include per-signature detail",
	"xml":       "result as XML",
	"json":      "result as JSON",
	"tsv":       "result as TSV",
	"csv":       "result as CSV",
}

// gendocs regenerates the scan flags table in README.md between
// <!-- BEGIN:SCAN_FLAGS --> and <!-- END:SCAN_FLAGS -->.
func init() {
	var path string
	cmd := &cobra.Command{
		Use:    "gendocs",
		Short:  "Regenerate the README scan flags table",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			nb, err := replaceSection(b, flagsBegin, flagsEnd, flagsTable())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return os.WriteFile(path, nb, 0644)
		},
	}
	cmd.Flags().StringVar(&path, "file", "README.md", "markdown file to update")
	rootCmd.AddCommand(cmd)
}

func flagsTable() string {
	var out strings.Builder
	out.WriteString("\n| Name | Bit | Meaning |\n|------|-----|---------|\n")
	for _, name := range die.FlagNames() {
		f, _ := die.ParseFlags(name)
		fmt.Fprintf(&out, "| `%s` | `0x%x` | %s |\n", name, f.Bits(), flagDocs[name])
	}
	return out.String()
}

func replaceSection(b []byte, begin, end, body string) ([]byte, error) {
	i := bytes.Index(b, []byte(begin))
	j := bytes.Index(b, []byte(end))
	if i < 0 || j < 0 || j <= i {
		return nil, fmt.Errorf("markers not found")
	}
	var nb bytes.Buffer
	nb.Write(b[:i])
	nb.WriteString(begin)
	nb.WriteString("\n")
	nb.WriteString(body)
	nb.Write(b[j:])
	return nb.Bytes(), nil
}
