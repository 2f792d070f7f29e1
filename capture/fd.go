package capture

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tcptap/tcptap/printer"
)

// When the hard limit is reported as unlimited, the run assumes
// maxFDGuess*4 descriptors.
const maxFDGuess = 64

// MaxDescriptors raises the process descriptor limit to its hard
// maximum (or to desired, when set) and returns the ceiling the run
// may assume. The ring later contracts below this if the kernel
// disagrees.
func MaxDescriptors(desired int) (int, error) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, errors.Wrap(err, "calling getrlimit")
	}

	if desired > 0 {
		limit.Cur = uint64(desired)
	} else {
		limit.Cur = limit.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, errors.Wrap(err, "calling setrlimit")
	}

	if desired > 0 {
		printer.V(10).Debugf("using only %d FDs\n", desired)
		return desired, nil
	}

	maxDescs := int(limit.Max)
	if limit.Max == unix.RLIM_INFINITY {
		maxDescs = maxFDGuess * 4
	}

	printer.V(10).Debugf("found max FDs to be %d using rlimit\n", maxDescs)
	return maxDescs, nil
}
