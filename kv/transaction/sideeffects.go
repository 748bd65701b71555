package transaction

// WatchOp is the kind of externally visible effect a watch event describes.
type WatchOp int

const (
	WatchOpWrite WatchOp = iota
	WatchOpMkdir
	WatchOpRm
	WatchOpSetPerms
)

func (op WatchOp) String() string {
	switch op {
	case WatchOpWrite:
		return "write"
	case WatchOpMkdir:
		return "mkdir"
	case WatchOpRm:
		return "rm"
	case WatchOpSetPerms:
		return "setperms"
	}
	return "unknown"
}

// WatchEvent is a notification obligation: it must be delivered to watchers
// if and only if the transaction that recorded it commits.
type WatchEvent struct {
	Op   WatchOp
	Path string
}

// SideEffects accumulates the observable effects of one transaction. It is
// owned exclusively by that transaction and discarded whole on conflict.
//
// Writes receives every created or modified path, including implicitly
// created parent directories. Deletes receives removed paths. Every entry in
// Writes has exactly one corresponding watch event, except implicit parent
// directories, which are deliberately silent so watchers are not flooded
// with events for paths no client asked about.
type SideEffects struct {
	Writes  []string
	Deletes []string
	Watches []WatchEvent
}

func (se *SideEffects) addWrite(path string) {
	se.Writes = append(se.Writes, path)
}

func (se *SideEffects) addDelete(path string) {
	se.Deletes = append(se.Deletes, path)
}

func (se *SideEffects) addWatch(op WatchOp, path string) {
	se.Watches = append(se.Watches, WatchEvent{Op: op, Path: path})
}

// Empty reports whether the transaction had no store effects at all. A
// commit of an empty transaction publishes nothing.
func (se *SideEffects) Empty() bool {
	return len(se.Writes) == 0 && len(se.Deletes) == 0
}
