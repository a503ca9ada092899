package gateway

import "strings"

// lineTerminator marks the end of one gateway line on the wire.
const lineTerminator = '.'

// lineBuffer accumulates raw serial bytes and yields complete lines.
// The gateway pads lines with noise bytes on both sides, so each
// extracted line is trimmed down to its header-to-reading interior.
type lineBuffer struct {
	buf strings.Builder
}

// push appends raw bytes and returns every complete line they finish,
// in order. Bytes after the last terminator seed the next call.
func (b *lineBuffer) push(data []byte) []string {
	b.buf.Write(data)
	pending := b.buf.String()

	var lines []string
	for {
		end := strings.IndexByte(pending, lineTerminator)
		if end < 0 {
			break
		}
		if line := trimLine(pending[:end]); line != "" {
			lines = append(lines, line)
		}
		pending = pending[end+1:]
	}

	b.buf.Reset()
	b.buf.WriteString(pending)
	return lines
}

// trimLine strips noise around the line body. Every line starts with a
// letter header, so leading digits are noise too; the tail ends on the
// last alphanumeric byte since readings may end in a digit.
func trimLine(raw string) string {
	start := 0
	for start < len(raw) && !isAlphabetic(raw[start]) {
		start++
	}
	end := len(raw)
	for end > start && !isAlphanumeric(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isAlphabetic(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isAlphanumeric(c byte) bool {
	return isAlphabetic(c) || c >= '0' && c <= '9'
}
