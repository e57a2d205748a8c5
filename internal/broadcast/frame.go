package broadcast

import (
	"bytes"
)

// Sentinel heartbeat frame.
var pingFrame = Frame([]byte("ping"))

// Frame encodes payload as one event-stream event: a "data: " line per payload line and a blank line.
// Compact JSON never contains a raw newline, so it always becomes a single data line.
func Frame(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte{'\r'}))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
