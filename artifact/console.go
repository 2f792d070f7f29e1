package artifact

import (
	"fmt"
	"io"
	"time"

	"github.com/tcptap/tcptap/dissect"
)

// Console prints each segment as "flowname: payload" instead of
// storing it. There is no descriptor ring and no per-flow limit in
// this mode.
type Console struct {
	out io.Writer

	// PrintTime prefixes each line with the packet time; PrintDateTime
	// with date and time, and wins when both are set.
	PrintTime     bool
	PrintDateTime bool

	// StripEOL replaces CR and LF in the payload with '.' so each
	// segment stays on one line.
	StripEOL bool
}

var _ dissect.Sink = (*Console)(nil)

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Process(seg dissect.Segment) error {
	payload := seg.Payload
	if c.StripEOL {
		payload = stripEOL(payload)
	}

	if _, err := fmt.Fprintf(c.out, "%s%s: ", c.timestamp(seg.ObservationTime), seg.Key.Name()); err != nil {
		return err
	}
	if _, err := c.out.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(c.out, "\n")
	return err
}

func (c *Console) timestamp(ts time.Time) string {
	switch {
	case c.PrintDateTime:
		return ts.Format("2006-01-02 15:04:05 ")
	case c.PrintTime:
		return ts.Format("15:04:05.000000 ")
	default:
		return ""
	}
}

func stripEOL(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		if b == '\n' || b == '\r' {
			out[i] = '.'
		} else {
			out[i] = b
		}
	}
	return out
}
