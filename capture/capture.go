// Package capture owns the pcap handle and the capture loop. It wires
// the link dissector to a sink, installs the BPF filter, and feeds
// every captured frame through the single-threaded processing path.
package capture

import (
	"io"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tcptap/tcptap/artifact"
	"github.com/tcptap/tcptap/dissect"
	"github.com/tcptap/tcptap/flow"
	"github.com/tcptap/tcptap/printer"
	"github.com/tcptap/tcptap/util"
)

const (
	// The original tcpdump-era snapshot length; big enough for any
	// whole TCP segment on common links.
	snaplen = 65536

	// Read timeout on the live handle. Short enough that the loop
	// notices a termination signal promptly.
	readTimeout = 1000 * time.Millisecond
)

type Args struct {
	// Interface to capture from. Empty means pick the first usable
	// non-loopback interface.
	Interface string

	// TraceFile switches to offline capture from a recorded trace.
	TraceFile string

	// Filter is the user's BPF expression; it is wrapped as
	// "(ip) and (<expr>)" before installation.
	Filter string

	// BytesPerFlow caps each flow's output; 0 means unlimited.
	BytesPerFlow uint64

	// MaxDesiredFDs caps how many descriptors the run may use; 0 means
	// use the system maximum.
	MaxDesiredFDs int

	ConsoleOnly   bool
	NoPromisc     bool
	StripNonPrint bool

	// Console-mode output options.
	StripEOL      bool
	PrintTime     bool
	PrintDateTime bool
}

type packet struct {
	data []byte
	ci   gopacket.CaptureInfo
	err  error
}

// Run captures until the trace is exhausted or a TERM/INT/HUP signal
// arrives. Packets are processed one at a time from link header to
// flushed write; the only blocking point is the next-packet read.
func Run(args Args) error {
	var handle *pcap.Handle

	if args.TraceFile != "" {
		// No network access needed, so drop root privileges first.
		dropPrivileges()

		var err error
		handle, err = pcap.OpenOffline(args.TraceFile)
		if err != nil {
			return errors.Wrapf(err, "failed to open trace file %s", args.TraceFile)
		}
	} else {
		device := args.Interface
		if device == "" {
			var err error
			device, err = defaultInterface()
			if err != nil {
				return err
			}
		}

		var err error
		handle, err = pcap.OpenLive(device, snaplen, !args.NoPromisc, readTimeout)
		if err != nil {
			return describeCaptureError(device, err)
		}

		// Drop root privileges - we don't need them any more.
		dropPrivileges()

		args.Interface = device
	}

	sink, ring, err := buildSink(args)
	if err != nil {
		handle.Close()
		return err
	}

	dlt := handle.LinkType()
	dissector := dissect.NewDissector(sink, args.StripNonPrint)
	handler, err := dissector.HandlerForLinkType(dlt)
	if err != nil {
		handle.Close()
		return err
	}

	if filter := buildFilter(args.Filter, dlt); filter != "" {
		printer.V(20).Debugf("filter expression: '%s'\n", filter)
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return errors.Wrap(err, "failed to set BPF filter")
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGTERM, unix.SIGINT, unix.SIGHUP)
	defer signal.Stop(sigChan)

	if args.TraceFile == "" {
		printer.V(1).Debugf("listening on %s\n", args.Interface)
	}

	done := make(chan struct{})
	packets := capturePackets(done, handle)

	finish := func() {
		if ring != nil {
			ring.CloseAll()
		}
	}

	for {
		select {
		case <-sigChan:
			printer.V(1).Debugf("terminating\n")
			close(done)
			// Wait for the reader to close the handle so a live
			// interface leaves promiscuous mode.
			for range packets {
			}
			finish()
			return nil
		case pkt, ok := <-packets:
			if !ok {
				finish()
				return nil
			}
			if pkt.err != nil {
				finish()
				return errors.Wrap(pkt.err, "packet capture failed")
			}
			if err := handler(pkt.data, pkt.ci); err != nil {
				close(done)
				for range packets {
				}
				finish()
				// In file mode only fatal resource exhaustion propagates
				// this far; in console mode a failed write to standard
				// output does too, and is reported with the same class.
				return util.ExitError{Class: util.ExhaustionFailure, Err: err}
			}
		}
	}
}

// buildSink selects the console printer or the file writer. The ring
// is non-nil only in file mode.
func buildSink(args Args) (dissect.Sink, *artifact.Ring, error) {
	if args.ConsoleOnly {
		console := artifact.NewConsole(os.Stdout)
		console.PrintTime = args.PrintTime
		console.PrintDateTime = args.PrintDateTime
		console.StripEOL = args.StripEOL
		return console, nil, nil
	}

	maxFDs, err := MaxDescriptors(args.MaxDesiredFDs)
	if err != nil {
		return nil, nil, err
	}
	ringSize := maxFDs - artifact.ReservedDescriptors
	if ringSize < 1 {
		return nil, nil, errors.Errorf("descriptor limit %d leaves no room for output files", maxFDs)
	}

	ring := artifact.NewRing(ringSize)
	writer := artifact.NewWriter(flow.NewTable(), ring, args.BytesPerFlow)
	return writer, ring, nil
}

// buildFilter wraps the user expression so only IP traffic is
// delivered. On platforms with a broken null datalink, any filter
// suppresses all loopback packets, so none is installed.
func buildFilter(expr string, dlt layers.LinkType) string {
	if dlt == layers.LinkTypeNull && nullFilterBroken() {
		if expr != "" {
			printer.V(1).Debugf("warning: the loopback device is broken on your system;\n")
			printer.V(1).Debugf("         filtering does not work.  Recording *all* packets.\n")
		}
		return ""
	}

	if expr == "" {
		return "ip"
	}
	return "(ip) and (" + expr + ")"
}

func nullFilterBroken() bool {
	return runtime.GOOS == "openbsd"
}

// capturePackets reads frames into a channel until EOF, a read error,
// or done closes. The reader owns the handle and closes it on the way
// out.
func capturePackets(done <-chan struct{}, handle *pcap.Handle) <-chan packet {
	out := make(chan packet, 10)
	go func() {
		defer close(out)
		defer handle.Close()

		for {
			select {
			case <-done:
				return
			default:
			}

			data, ci, err := handle.ReadPacketData()
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- packet{err: err}
				return
			}
			out <- packet{data: data, ci: ci}
		}
	}()
	return out
}

func dropPrivileges() {
	uid := unix.Getuid()
	if unix.Geteuid() == uid {
		return
	}
	if err := unix.Setuid(uid); err != nil {
		printer.Warningf("failed to drop privileges: %v\n", err)
	}
}
