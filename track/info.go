package track

import "time"

// Info is the aggregate summary returned by a single TrackInfo-style
// query, rather than requiring five separate accessor calls (the
// `mp4_demux_get_track_info` equivalent of the original libmp4 source).
type Info struct {
	ID            uint32
	Kind          Kind
	Timescale     uint32
	DurationTicks uint64
	CreatedAt     time.Time
	ModifiedAt    time.Time
	Enabled       bool
	SampleCount   int
	CodecTag      string
	References    []TrackReference
}

// CodecTag returns a short identifier for t's codec, e.g. "avc1", "hvc1"
// or "mp4a", or "" if the track has no recognized codec configuration.
func CodecTag(t *Track) string {
	switch t.Codec.(type) {
	case AVCConfig:
		return "avc1"
	case HEVCConfig:
		return "hvc1"
	case AACConfig:
		return "mp4a"
	default:
		return ""
	}
}

// BuildInfo assembles an Info from t.
func BuildInfo(t *Track) Info {
	return Info{
		ID:            t.ID,
		Kind:          t.Kind,
		Timescale:     t.Timescale,
		DurationTicks: t.DurationTicks,
		CreatedAt:     t.CreatedAt,
		ModifiedAt:    t.ModifiedAt,
		Enabled:       t.Enabled,
		SampleCount:   t.Samples.Len(),
		CodecTag:      CodecTag(t),
		References:    t.References,
	}
}
