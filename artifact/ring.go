// Package artifact writes each flow's payload bytes to its output
// file. A bounded ring of open descriptors is shared by all flows;
// flows are evicted in approximate least-recently-used order and
// transparently reopened on their next segment.
package artifact

import (
	"os"
	"sort"
	"syscall"

	"github.com/pkg/errors"

	"github.com/tcptap/tcptap/flow"
	"github.com/tcptap/tcptap/printer"
)

// ReservedDescriptors is how many descriptors are held back from the
// ring: the three standard streams, the capture handle, and one spare
// so a new file can be opened before an old one is closed.
const ReservedDescriptors = 5

// Ring is the bounded set of flows with open output files. Slots are
// filled round-robin; each time the cursor wraps, the slots are
// sorted by last access so the next evictions hit the oldest flows.
type Ring struct {
	slots []*flow.State
	next  int
}

// NewRing creates a ring of at most maxOpen simultaneously open
// files.
func NewRing(maxOpen int) *Ring {
	return &Ring{
		slots: make([]*flow.State, maxOpen),
		next:  -1,
	}
}

// OpenFiles reports the number of occupied slots.
func (r *Ring) OpenFiles() int {
	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}

func attemptOpen(st *flow.State, name string) (*os.File, error) {
	// Reopen in place if the file was created earlier in this run;
	// otherwise create it, clobbering output from previous runs.
	if st.Has(flow.FileExists) {
		printer.V(5).Debugf("%s: re-opening output file\n", name)
		return os.OpenFile(name, os.O_RDWR, 0644)
	}
	printer.V(5).Debugf("%s: opening new output file\n", name)
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

func tooManyFiles(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

// Open opens st's output file and installs it in a ring slot,
// evicting another flow if the slot is occupied. When the operating
// system refuses the open for lack of descriptors, the ring contracts
// and the open is retried. Any other open failure marks the flow
// finished and is not fatal: Open returns nil and st.File stays nil.
//
// The returned error is non-nil only when the ring has contracted to
// nothing, which ends the run.
func (r *Ring) Open(st *flow.State) error {
	name := st.Key.Name()

	if st.File != nil {
		printer.V(20).Debugf("huh -- trying to open already open file!\n")
		return nil
	}

	for {
		f, err := attemptOpen(st, name)
		if err == nil {
			st.File = f
			break
		}
		if tooManyFiles(err) {
			if cerr := r.contract(); cerr != nil {
				return cerr
			}
			printer.V(5).Debugf("too many open files -- contracting FD ring to %d\n", len(r.slots))
			continue
		}
		// Unrecoverable; give up on this flow so we don't retry the
		// open on every segment.
		st.Set(flow.Finished)
		printer.Errorf("%s: %v\n", name, err)
		return nil
	}

	// Pick the slot and close its occupant, if any. The occupant's
	// record stays in the flow table forever; the ring only remembers
	// which records hold open files. Opening before closing costs one
	// spare descriptor but means a failed open never destroys a
	// currently useful one.
	r.next++
	if r.next >= len(r.slots) {
		// Sort to sort of do LRU every time we get to the end.
		r.sortSlots()
		r.next = 0
	}

	if evicted := r.slots[r.next]; evicted != nil {
		r.Close(evicted)
	}

	r.slots[r.next] = st
	printer.V(5).Debugf("....slot %d\n", r.next)

	st.Set(flow.FileExists)
	st.Pos = 0
	return nil
}

// Close closes a flow's output file and frees its slot state. It is a
// no-op for flows with no open file.
func (r *Ring) Close(st *flow.State) {
	if st.File == nil {
		return
	}
	for i, s := range r.slots {
		if s == st {
			r.slots[i] = nil
		}
	}
	printer.V(5).Debugf("%s: closing file\n", st.Key.Name())
	st.File.Close()
	st.File = nil
	st.Pos = 0
}

// CloseAll closes every open file in the ring. Used at the end of a
// run.
func (r *Ring) CloseAll() {
	for i, s := range r.slots {
		if s != nil {
			r.Close(s)
			r.slots[i] = nil
		}
	}
	r.next = -1
}

// sortSlots orders occupied slots least-recently-accessed first, with
// empty slots at the end.
func (r *Ring) sortSlots() {
	sort.SliceStable(r.slots, func(i, j int) bool {
		x, y := r.slots[i], r.slots[j]
		switch {
		case x == nil:
			return false
		case y == nil:
			return true
		default:
			return x.LastAccess < y.LastAccess
		}
	})
}

// contract shrinks the ring by one slot after the OS refused an open:
// the configured maximum overestimated the real ceiling. The oldest
// flow's file is closed, the remaining slots shift down, and the ring
// never grows back.
func (r *Ring) contract() error {
	r.sortSlots()

	if len(r.slots) == 0 || r.slots[0] == nil {
		return errors.New("we seem to be completely out of file descriptors")
	}

	r.Close(r.slots[0])

	i := 1
	for ; i < len(r.slots) && r.slots[i] != nil; i++ {
		r.slots[i-1] = r.slots[i]
	}
	r.slots[i-1] = nil
	r.slots = r.slots[:len(r.slots)-1]
	r.next = -1

	if len(r.slots) == 0 {
		return errors.New("we seem to be completely out of file descriptors")
	}
	return nil
}
