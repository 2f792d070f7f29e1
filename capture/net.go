package capture

import (
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// PCAP_IF_LOOPBACK and PCAP_IF_UP in the interface flags reported by
// libpcap.
const (
	pcapIfLoopback = 0x1
	pcapIfUp       = 0x2
)

// defaultInterface picks a capture device when the user supplied
// none: the first up, addressable, non-loopback interface, falling
// back to loopback if that is all there is.
func defaultInterface() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "", errors.Wrap(err, "failed to enumerate capture interfaces")
	}

	var fallback string
	for _, dev := range devs {
		if dev.Flags&pcapIfUp == 0 || len(dev.Addresses) == 0 {
			continue
		}
		if dev.Flags&pcapIfLoopback != 0 {
			if fallback == "" {
				fallback = dev.Name
			}
			continue
		}
		return dev.Name, nil
	}

	if fallback != "" {
		return fallback, nil
	}
	return "", errors.New("no suitable capture interface found; use -i to pick one")
}
