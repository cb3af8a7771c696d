package preproc

import (
	"bufio"
	"io"
	"os"

	"github.com/mockprobe/mockprobe/pkg/conditional"
)

// Flatten copies src to dst with every conditional directive line replaced
// by a blank line. Non-directive lines pass through untouched, so the copy
// keeps the original's line count and functions hidden behind #ifdef blocks
// become visible to a structural parser.
func Flatten(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if conditional.IsDirective(line) {
			line = ""
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// FlattenFile flattens src into dst, creating or truncating dst.
func FlattenFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := Flatten(in, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
