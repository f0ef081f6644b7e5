package die_test

import (
	"errors"
	"fmt"
	"os"

	"github.com/varalys/diego/pkg/die"
)

// ExampleScanFile scans one executable with deep scanning and JSON output.
func ExampleScanFile() {
	out, err := die.ScanFile("/bin/ls", die.DeepScan|die.ResultAsJSON)
	if errors.Is(err, die.ErrNotLinked) {
		fmt.Fprintln(os.Stderr, "rebuild with -tags die after `diego build`")
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan failed:", err)
		return
	}
	fmt.Println(out)
}

// ExampleScanner_LoadDatabase loads a database once, then scans buffers.
func ExampleScanner_LoadDatabase() {
	s, err := die.New()
	if err != nil {
		return
	}
	if err := s.LoadDatabase("/opt/die/db"); err != nil {
		var ee *die.EngineError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "engine code", ee.Code)
		}
		return
	}
	out, err := s.ScanMemory([]byte("MZ\x90\x00"), die.HeuristicScan)
	if err == nil {
		fmt.Println(die.FileType(out))
	}
}
