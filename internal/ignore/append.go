package ignore

import (
	"bufio"
	"os"
	"strings"
)

// AppendPattern adds pattern as its own line to the ignore file at path,
// creating the file when missing. A pattern already present is left alone.
func AppendPattern(path, pattern string) error {
	var last byte = '\n'
	if b, err := os.ReadFile(path); err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(b)))
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == pattern {
				return nil
			}
		}
		if len(b) > 0 {
			last = b[len(b)-1]
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	line := pattern + "\n"
	if last != '\n' {
		line = "\n" + line
	}
	_, err = f.WriteString(line)
	return err
}
