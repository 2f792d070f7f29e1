// Package flow tracks per-flow state for every unidirectional TCP
// stream seen during a capture.
package flow

import (
	"encoding/binary"
	"fmt"
)

// Key identifies one direction of a TCP connection. Addresses and
// ports are in host byte order. The two directions of a connection
// have distinct keys and produce distinct output files.
type Key struct {
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
}

// Name returns the output filename for this flow:
// AAA.AAA.AAA.AAA.PPPPP-BBB.BBB.BBB.BBB.QQQQQ with zero-padded
// octets and ports.
func (k Key) Name() string {
	return fmt.Sprintf("%03d.%03d.%03d.%03d.%05d-%03d.%03d.%03d.%03d.%05d",
		uint8(k.SrcIP>>24), uint8(k.SrcIP>>16), uint8(k.SrcIP>>8), uint8(k.SrcIP),
		k.SrcPort,
		uint8(k.DstIP>>24), uint8(k.DstIP>>16), uint8(k.DstIP>>8), uint8(k.DstIP),
		k.DstPort)
}

func (k Key) String() string {
	return k.Name()
}

// pack serializes the key into a fixed 12-byte buffer for hashing.
func (k Key) pack(buf *[12]byte) {
	binary.BigEndian.PutUint32(buf[0:4], k.SrcIP)
	binary.BigEndian.PutUint32(buf[4:8], k.DstIP)
	binary.BigEndian.PutUint16(buf[8:10], k.SrcPort)
	binary.BigEndian.PutUint16(buf[10:12], k.DstPort)
}
