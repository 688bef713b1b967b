package canvas

import (
	"sync"

	"github.com/inklet/inklet/internal/domain"
)

// Snapshots caches a flattened canvas representation per room so joiners
// don't replay the full history. Clients opportunistically upload a rendered
// raster (data URL); when none is cached, Request falls back to a replay of
// the active events, which is always correct.
type Snapshots struct {
	log     *Log
	rasters map[string]raster
	mu      sync.RWMutex
}

type raster struct {
	data string
	seq  int64 // commit frontier the raster reflects
}

func NewSnapshots(log *Log) *Snapshots {
	return &Snapshots{
		log:     log,
		rasters: make(map[string]raster),
	}
}

// Request returns the best available snapshot: the cached raster (if any)
// plus the active events committed after it. Undone events never appear.
func (s *Snapshots) Request(roomID string) domain.Snapshot {
	s.mu.RLock()
	cached, ok := s.rasters[roomID]
	s.mu.RUnlock()

	events, frontier := s.log.ActiveHistory(roomID)
	snap := domain.Snapshot{
		Seq:    frontier,
		Events: events,
	}

	if !ok {
		return snap
	}

	snap.Raster = cached.data
	snap.RasterSeq = cached.seq

	// Trim the replay to events the raster doesn't already contain.
	i := 0
	for i < len(events) && events[i].Seq <= cached.seq {
		i++
	}
	snap.Events = events[i:]
	return snap
}

// StoreRaster caches a client-rendered raster. asOfSeq is the last seq the
// uploader had applied; zero means "current", trusting the uploader to be
// caught up. An upload whose tag doesn't match the current frontier was
// rendered against a different history (an undo, redo or clear landed in
// between) and may contain retracted strokes, so it is dropped rather than
// re-tagged.
func (s *Snapshots) StoreRaster(roomID, data string, asOfSeq int64) {
	if roomID == "" || data == "" {
		return
	}

	frontier := s.log.Seq(roomID)
	if asOfSeq == 0 {
		asOfSeq = frontier
	}
	if asOfSeq != frontier {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rasters[roomID] = raster{data: data, seq: asOfSeq}
}

// Invalidate discards the cached raster. Called after clear, undo and redo:
// a raster drawn before a retraction would leak undone strokes into
// snapshots.
func (s *Snapshots) Invalidate(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rasters, roomID)
}
