package suite

// ReplayWindow tracks the last 64 record sequence numbers of an epoch.
type ReplayWindow struct {
	latest uint64
	bitmap uint64
	seen   bool
}

// WindowSize is the number of sequence numbers the window remembers.
const WindowSize = 64

// Check reports whether seq is new and inside the window.
func (w *ReplayWindow) Check(seq uint64) bool {
	if !w.seen || seq > w.latest {
		return true
	}
	diff := w.latest - seq
	if diff >= WindowSize {
		return false
	}
	return w.bitmap&(1<<diff) == 0
}

// Accept marks seq as received. Call it only after the record
// authenticated.
func (w *ReplayWindow) Accept(seq uint64) {
	if !w.seen {
		w.seen = true
		w.latest = seq
		w.bitmap = 1
		return
	}
	if seq > w.latest {
		shift := seq - w.latest
		if shift >= WindowSize {
			w.bitmap = 0
		} else {
			w.bitmap <<= shift
		}
		w.bitmap |= 1
		w.latest = seq
		return
	}
	w.bitmap |= 1 << (w.latest - seq)
}
