package push

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxFrameBytes = 1 << 20

// frameReader splits a text/event-stream body into data payloads. Only
// the data field is used; event, id and retry fields and comments are
// skipped.
type frameReader struct {
	sc   *bufio.Scanner
	data bytes.Buffer
}

func newFrameReader(r io.Reader) *frameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxFrameBytes)
	return &frameReader{sc: sc}
}

// Next returns the next frame's data, or the read error (io.EOF when the
// stream ended cleanly).
func (f *frameReader) Next() ([]byte, error) {
	for f.sc.Scan() {
		line := f.sc.Text()
		if line == "" {
			if f.data.Len() == 0 {
				continue
			}
			out := bytes.Clone(f.data.Bytes())
			f.data.Reset()
			return out, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		if f.data.Len() > 0 {
			f.data.WriteByte('\n')
		}
		f.data.WriteString(value)
	}
	if err := f.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
