// Package dissect turns captured link-layer frames into TCP payload
// segments. It strips the link header for the capture's datalink
// type, validates the IPv4 and TCP headers, and hands every
// payload-bearing segment to a Sink.
package dissect

import (
	"time"

	"github.com/tcptap/tcptap/flow"
)

// Segment is one TCP segment's payload, placed in its flow's
// sequence space.
type Segment struct {
	Key flow.Key

	// Seq is the TCP sequence number of the first payload byte.
	Seq uint32

	// ObservationTime is the capture timestamp of the containing
	// frame.
	ObservationTime time.Time

	Payload []byte
}

// Sink consumes dissected segments. Implementations run to completion
// before the next frame is dissected.
type Sink interface {
	Process(Segment) error
}
