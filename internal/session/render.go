package session

import (
	"strings"
	"sync"

	"github.com/tuzig/vt10x"
)

// paneRenderer feeds raw PTY bytes through a vt10x terminal emulator so
// PTYBackend.CapturePane can return post-escape-code-interpretation lines
// exactly like a tmux capture-pane would, and keeps a bounded raw
// scrollback ring buffer for GetRawHistory.
type paneRenderer struct {
	mu   sync.Mutex
	term vt10x.Terminal
	raw  []byte
}

const maxRawHistory = 256 * 1024

func newPaneRenderer(cols, rows int) *paneRenderer {
	return &paneRenderer{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
	}
}

// Write feeds newly-read PTY output into the emulator and raw history
// buffer. Implements io.Writer so it can be chained with other readers.
func (r *paneRenderer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.term.Write(p)

	r.raw = append(r.raw, p...)
	if len(r.raw) > maxRawHistory {
		r.raw = r.raw[len(r.raw)-maxRawHistory:]
	}

	return len(p), nil
}

// Lines returns the last tailLines rendered lines from the emulator's
// current screen grid.
func (r *paneRenderer) Lines(tailLines int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, rows := r.term.Size()
	var lines []string
	for row := 0; row < rows; row++ {
		var b strings.Builder
		for col := 0; col < r.cols(); col++ {
			glyph := r.term.Cell(col, row)
			if glyph.Char == 0 {
				b.WriteRune(' ')
			} else {
				b.WriteRune(glyph.Char)
			}
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}

	if tailLines > 0 && tailLines < len(lines) {
		lines = lines[len(lines)-tailLines:]
	}
	return lines
}

func (r *paneRenderer) cols() int {
	cols, _ := r.term.Size()
	return cols
}

// RawHistory returns a copy of the accumulated raw (escape-sequence
// intact) output buffer.
func (r *paneRenderer) RawHistory() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.raw))
	copy(out, r.raw)
	return string(out)
}

// Resize updates the emulator's grid dimensions.
func (r *paneRenderer) Resize(cols, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.term.Resize(cols, rows)
}
