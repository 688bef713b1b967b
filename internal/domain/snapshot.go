package domain

// Snapshot fast-forwards a late joiner: render Raster (if any), then replay
// Events in order. Seq is the commit frontier the snapshot reflects; events
// committed after it arrive through the normal broadcast path.
type Snapshot struct {
	Seq       int64       `json:"seq"`
	Raster    string      `json:"raster,omitempty"` // client-supplied data URL
	RasterSeq int64       `json:"rasterSeq,omitempty"`
	Events    []DrawEvent `json:"events"`
}
