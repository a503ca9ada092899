package protocol

import "strings"

// Framer extracts complete delimited frames from an accumulating stream.
//
// Push appends freshly read bytes and returns the payloads of every
// complete StartTag/EndTag pair found, in stream order. Partial frames
// (a start without an end, or a tag split across reads) stay buffered
// for the next Push. A single Push may therefore return zero, one, or
// several payloads regardless of how the stream was chunked.
//
// A Framer is owned by exactly one connection and is not safe for
// concurrent use.
type Framer struct {
	buf strings.Builder
}

// Push appends data to the accumulator and returns all complete frame
// payloads now available (the text between the frame tags, tags stripped).
func (f *Framer) Push(data []byte) []string {
	f.buf.Write(data)

	stream := f.buf.String()
	var frames []string
	for {
		startIdx := strings.Index(stream, StartTag)
		if startIdx < 0 {
			break
		}
		rest := stream[startIdx+len(StartTag):]
		endIdx := strings.Index(rest, EndTag)
		if endIdx < 0 {
			// Partial frame: drop any noise before the start tag and
			// wait for more bytes.
			stream = stream[startIdx:]
			break
		}
		frames = append(frames, rest[:endIdx])
		stream = rest[endIdx+len(EndTag):]
	}

	if len(stream) != f.buf.Len() {
		f.buf.Reset()
		f.buf.WriteString(stream)
	}
	return frames
}

// Pending returns the number of buffered bytes awaiting a complete frame.
func (f *Framer) Pending() int {
	return f.buf.Len()
}
