package dissect

import (
	"encoding/binary"
	"time"

	"github.com/tcptap/tcptap/flow"
	"github.com/tcptap/tcptap/printer"
)

const (
	minIPHeaderLen  = 20
	minTCPHeaderLen = 20

	protoTCP = 6

	// Non-zero fragment offset means a continuation fragment; there is
	// no reassembly, so those are dropped.
	fragOffsetMask = 0x1fff
)

// processIP validates an IPv4 datagram and hands the embedded TCP
// segment to processTCP.
func (d *Dissector) processIP(data []byte, ts time.Time) error {
	caplen := len(data)
	if caplen < minIPHeaderLen {
		printer.V(6).Debugf("received truncated IP datagram!\n")
		return nil
	}

	if data[9] != protoTCP {
		return nil
	}

	// The captured bytes may extend past the datagram (ethernet
	// padding) or fall short of it (snaplen). Everything downstream
	// uses the smaller of the two.
	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if caplen < totalLen {
		printer.V(6).Debugf("warning: captured only %d bytes of %d-byte IP datagram\n", caplen, totalLen)
		totalLen = caplen
	}

	if binary.BigEndian.Uint16(data[6:8])&fragOffsetMask != 0 {
		printer.V(2).Debugf("warning: throwing away IP fragment\n")
		return nil
	}

	headerLen := int(data[0]&0x0f) * 4
	if headerLen > totalLen {
		printer.V(6).Debugf("received truncated IP datagram!\n")
		return nil
	}

	src := binary.BigEndian.Uint32(data[12:16])
	dst := binary.BigEndian.Uint32(data[16:20])
	return d.processTCP(data[headerLen:totalLen], src, dst, ts)
}

// processTCP extracts the four-tuple, sequence number and payload and
// forwards payload-bearing segments to the sink. Header-only segments
// (pure ACKs) are dropped without logging.
func (d *Dissector) processTCP(data []byte, src, dst uint32, ts time.Time) error {
	length := len(data)
	if length < minTCPHeaderLen {
		printer.V(6).Debugf("received truncated TCP segment!\n")
		return nil
	}

	headerLen := int(data[12]>>4) * 4
	if length <= headerLen {
		return nil
	}

	key := flow.Key{
		SrcIP:   src,
		DstIP:   dst,
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
	}
	seq := binary.BigEndian.Uint32(data[4:8])

	payload := data[headerLen:]
	if d.stripNonPrint {
		payload = stripNonPrintable(payload)
	}

	return d.sink.Process(Segment{
		Key:             key,
		Seq:             seq,
		ObservationTime: ts,
		Payload:         payload,
	})
}

// stripNonPrintable copies the payload, replacing every byte outside
// printable ASCII other than CR and LF with '.'.
func stripNonPrintable(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		if (b >= 0x20 && b <= 0x7e) || b == '\n' || b == '\r' {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return out
}
