package artifact

import (
	"io"

	"github.com/tcptap/tcptap/dissect"
	"github.com/tcptap/tcptap/flow"
	"github.com/tcptap/tcptap/printer"
)

// preISNWindow guards against segments that arrive slightly out of
// order before the segment whose sequence became the ISN. Offsets in
// the 64 KiB window just below zero are treated as pre-ISN and
// dropped rather than wrapped to astronomical file offsets.
const preISNWindow = 0xffff0000

// Writer places each segment's payload at offset seq-isn in the
// flow's output file. Out-of-order segments are written directly at
// their offset; there is no reassembly buffer. Retransmitted bytes
// overwrite themselves harmlessly.
type Writer struct {
	table *flow.Table
	ring  *Ring

	// bytesPerFlow caps how much of each flow is kept; 0 means
	// unlimited.
	bytesPerFlow uint64
}

var _ dissect.Sink = (*Writer)(nil)

func NewWriter(table *flow.Table, ring *Ring, bytesPerFlow uint64) *Writer {
	return &Writer{
		table:        table,
		ring:         ring,
		bytesPerFlow: bytesPerFlow,
	}
}

// Ring exposes the descriptor ring, mainly so the capture driver can
// close all files at the end of a run.
func (w *Writer) Ring() *Ring {
	return w.ring
}

func (w *Writer) Process(seg dissect.Segment) error {
	st := w.table.Find(seg.Key)
	if st == nil {
		// The first payload sequence becomes the ISN; the SYN need not
		// have been observed.
		st = w.table.Create(seg.Key, seg.Seq)
		printer.V(5).Debugf("%s: new flow\n", st.Key.Name())
	}

	if st.Has(flow.Finished) {
		return nil
	}

	// Unsigned arithmetic handles sequence wrap.
	offset := seg.Seq - st.ISN

	if offset >= preISNWindow {
		printer.V(2).Debugf("dropped packet with seq < isn on %s\n", st.Key.Name())
		return nil
	}

	// Reject segments that fall entirely beyond the per-flow limit.
	if w.bytesPerFlow > 0 && uint64(offset) > w.bytesPerFlow {
		printer.V(6).Debugf("%s: dropped packet past %d-byte flow limit\n", st.Key.Name(), w.bytesPerFlow)
		return nil
	}

	if st.File == nil {
		if err := w.ring.Open(st); err != nil {
			return err
		}
		if st.File == nil {
			return nil
		}
	}

	payload := seg.Payload
	if w.bytesPerFlow > 0 && uint64(offset)+uint64(len(payload)) > w.bytesPerFlow {
		st.Set(flow.Finished)
		payload = payload[:w.bytesPerFlow-uint64(offset)]
	}

	if int64(offset) != st.Pos {
		if _, err := st.File.Seek(int64(offset), io.SeekStart); err != nil {
			printer.Errorf("seek in %s failed: %v\n", st.Key.Name(), err)
			return nil
		}
	}

	printer.V(11).Debugf("%s: writing %d bytes @%d\n", st.Key.Name(), len(payload), offset)

	if _, err := st.File.Write(payload); err != nil {
		// Transient; the flow stays live.
		printer.Errorf("write to %s failed: %v\n", st.Key.Name(), err)
	}

	st.Pos = int64(offset) + int64(len(payload))

	if st.Has(flow.Finished) {
		printer.V(5).Debugf("%s: stopping capture\n", st.Key.Name())
		w.ring.Close(st)
	}
	return nil
}
