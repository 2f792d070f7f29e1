package capture

import (
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/tcptap/tcptap/env"
	"github.com/tcptap/tcptap/printer"
)

// describeCaptureError explains a failure to open a live capture
// handle and returns the error to surface. Permission problems get
// environment-specific guidance.
func describeCaptureError(device string, sampleError error) error {
	if strings.Contains(sampleError.Error(), "Operation not permitted") {
		// Permission denied == not enough capabilities.
		// Are we running as root?
		if os.Geteuid() == 0 {
			if env.InDocker() {
				printer.Warningf("Although you are running as root, this container lacks the CAP_NET_RAW capability.\n")
				printer.Warningf("It might be that you are in a PaaS that disallows packet capture, or the local configuration has disabled that privilege by default.\n")
			} else {
				printer.Warningf("Although you are running as root, tcptap lacks the CAP_NET_RAW capability.\n")
				printer.Warningf("It might be that you are in a restricted environment which disallows packet capture, even as the root user.\n")
			}
			return errors.Errorf("insufficient permissions to capture on %s", device)
		}

		// Non-root user
		printer.Warningf("tcptap needs the CAP_NET_RAW capability to capture packets. You are running as an unprivileged (non-root) user.\n")
		return errors.Errorf("insufficient permissions to capture on %s, try using \"sudo\" to run as root", device)
	}

	if strings.Contains(sampleError.Error(), "SIOCETHTOOL(ETHTOOL_GET_TS_INFO) ioctl failed: Function not implemented") {
		// This happens when the binary was built for a different
		// architecture, e.g. an amd64 image pulled onto an arm64 host.
		arch := canonicalArch()
		printer.Warningf(
			"Received \"Function not implemented\" when trying to read from your network interfaces. "+
				"This often indicates that tcptap was built for a different architecture than your host architecture. "+
				"This binary was built for %s.\n",
			arch,
		)
		return errors.Wrapf(sampleError, "unable to read from interface %s", device)
	}

	return errors.Wrapf(sampleError, "failed to open pcap to %s", device)
}

// canonicalArch names the build architecture the way release
// artifacts are named, so the guidance matches what users download.
func canonicalArch() string {
	switch arch := runtime.GOARCH; arch {
	case "amd64", "x86_64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	default:
		return arch
	}
}
