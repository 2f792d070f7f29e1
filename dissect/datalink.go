package dissect

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/tcptap/tcptap/printer"
)

// Link-layer header sizes. The null (loopback) and PPP headers are 4
// bytes; raw frames carry the IP datagram with no header at all.
const (
	nullHeaderLen     = 4
	pppHeaderLen      = 4
	ethernetHeaderLen = 14
)

// afInet is the address-family value carried in a null/loopback
// header for IPv4.
const afInet = 2

// Handler processes one captured frame. ci carries the captured and
// original lengths and the capture timestamp.
type Handler func(data []byte, ci gopacket.CaptureInfo) error

// Dissector feeds dissected segments into a sink.
type Dissector struct {
	sink Sink

	// stripNonPrint replaces payload bytes outside printable ASCII
	// (keeping CR and LF) with '.'.
	stripNonPrint bool
}

func NewDissector(sink Sink, stripNonPrint bool) *Dissector {
	return &Dissector{
		sink:          sink,
		stripNonPrint: stripNonPrint,
	}
}

// HandlerForLinkType selects the frame handler for the capture's
// datalink type. An unsupported type is a startup error.
func (d *Dissector) HandlerForLinkType(lt layers.LinkType) (Handler, error) {
	printer.V(2).Debugf("looking for handler for datalink type %d\n", lt)

	switch lt {
	case layers.LinkTypeNull:
		return d.handleNull, nil
	case layers.LinkTypeEthernet, layers.LinkTypeTokenRing:
		return d.handleEthernet, nil
	case layers.LinkTypePPP:
		return d.handlePPP, nil
	case layers.LinkTypeRaw:
		return d.handleRaw, nil
	}
	return nil, errors.Errorf("sorry - unknown datalink type %d", lt)
}

// The null header holds a 4-byte address family. Loopback drivers
// write it in host byte order, so both orders are accepted.
func (d *Dissector) handleNull(data []byte, ci gopacket.CaptureInfo) error {
	caplen := len(data)
	if caplen != ci.Length {
		printer.V(6).Debugf("warning: only captured %d bytes of %d byte null frame\n", caplen, ci.Length)
	}
	if caplen < nullHeaderLen {
		printer.V(6).Debugf("warning: received incomplete null frame\n")
		return nil
	}

	if binary.BigEndian.Uint32(data[:4]) != afInet && binary.LittleEndian.Uint32(data[:4]) != afInet {
		printer.V(6).Debugf("warning: received non-IPv4 null frame (type %d)\n", binary.BigEndian.Uint32(data[:4]))
		return nil
	}

	return d.processIP(data[nullHeaderLen:], ci.Timestamp)
}

// Ethernet and 802 framing. Only IPv4 EtherType frames pass.
func (d *Dissector) handleEthernet(data []byte, ci gopacket.CaptureInfo) error {
	caplen := len(data)
	if caplen != ci.Length {
		printer.V(6).Debugf("warning: only captured %d bytes of %d byte ether frame\n", caplen, ci.Length)
	}
	if caplen < ethernetHeaderLen {
		printer.V(6).Debugf("warning: received incomplete ethernet frame\n")
		return nil
	}

	etherType := layers.EthernetType(binary.BigEndian.Uint16(data[12:14]))
	if etherType != layers.EthernetTypeIPv4 {
		printer.V(6).Debugf("warning: received ethernet frame with unknown type %x\n", uint16(etherType))
		return nil
	}

	return d.processIP(data[ethernetHeaderLen:], ci.Timestamp)
}

// The PPP header is skipped without parsing.
func (d *Dissector) handlePPP(data []byte, ci gopacket.CaptureInfo) error {
	caplen := len(data)
	if caplen != ci.Length {
		printer.V(6).Debugf("warning: only captured %d bytes of %d byte PPP frame\n", caplen, ci.Length)
	}
	if caplen < pppHeaderLen {
		printer.V(6).Debugf("warning: received incomplete PPP frame\n")
		return nil
	}

	return d.processIP(data[pppHeaderLen:], ci.Timestamp)
}

// Raw frames are the IP datagram itself.
func (d *Dissector) handleRaw(data []byte, ci gopacket.CaptureInfo) error {
	caplen := len(data)
	if caplen != ci.Length {
		printer.V(6).Debugf("warning: only captured %d bytes of %d byte raw frame\n", caplen, ci.Length)
	}

	return d.processIP(data, ci.Timestamp)
}
