package report

import (
	"bytes"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/term"

	"github.com/varalys/diego/pkg/die"
)

// Highlight colors a structured engine result for a 256-color terminal.
// Plain-text, TSV and CSV results come back unchanged.
func Highlight(result string, flags die.ScanFlags) string {
	var lexer chroma.Lexer
	switch flags.Formats() {
	case die.ResultAsJSON:
		lexer = lexers.Get("json")
	case die.ResultAsXML:
		lexer = lexers.Get("xml")
	}
	if lexer == nil {
		return result
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, result)
	if err != nil {
		return result
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return result
	}
	return buf.String()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
