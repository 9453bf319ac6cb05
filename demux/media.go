// Package demux parses a non-fragmented ISOBMFF file's moov box into an
// in-memory MediaState: per-track codec configuration and a flat,
// queryable sample index, plus the metadata and cover-art surface.
package demux

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

// macEpoch is the January 1, 1904 UTC reference ISOBMFF time fields
// count seconds from.
var macEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

func fromMacTime(secs uint64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return macEpoch.Add(time.Duration(secs) * time.Second)
}

// MediaState is the parsed state of one non-fragmented MP4 file's moov
// box. It is not safe for concurrent use from multiple goroutines
// without external synchronization.
type MediaState struct {
	Timescale     uint32
	DurationTicks uint64
	CreatedAt     time.Time
	ModifiedAt    time.Time
	Tracks        []*track.Track
	Meta          meta.Scopes
	Cover         *meta.Cover

	logger *slog.Logger
}

// Options configures Open.
type Options struct {
	// Logger receives a warning for each trak box that fails to parse
	// and is skipped. Other recoverable issues (a malformed tref entry, a
	// malformed metadata record, an unknown box) are skipped without a
	// log line. Nil means slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Open parses moovData (the complete moov box, including its header)
// into a MediaState. It does not read sample payloads from mdat; callers
// use GetSample for a sample's offset and size and ReadSampleData with
// the file's own io.ReaderAt to fetch its bytes.
func Open(moovData []byte, opts Options) (*MediaState, error) {
	r := isobox.NewReader(moovData)
	if !r.Next() || r.Type() != isobox.TypeMoov {
		return nil, isobox.NewError(isobox.KindProtocolError, "demux.Open", fmt.Errorf("moov box not found"))
	}

	ms := &MediaState{
		Meta:   meta.NewScopes(),
		logger: opts.logger(),
	}

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case isobox.TypeMvhd:
			ts, dur, _ := r.ReadMvhd()
			ms.Timescale = ts
			ms.DurationTicks = dur
		case isobox.TypeTrak:
			t, err := parseTrak(&r, ms)
			if err != nil {
				ms.logger.Warn("demux: skipping track", "error", err)
				continue
			}
			ms.Tracks = append(ms.Tracks, t)
		case isobox.TypeUdta:
			parseUdta(&r, ms)
		case isobox.TypeMeta:
			parseMoovMeta(&r, ms)
		}
	}
	r.Exit()

	if len(ms.Tracks) == 0 {
		return nil, isobox.NewError(isobox.KindProtocolError, "demux.Open", fmt.Errorf("no tracks found"))
	}

	return ms, nil
}

// TrackInfo returns the aggregate summary for the track with the given
// ID, the demux-side equivalent of a single mp4_demux_get_track_info
// call rather than five separate accessors.
func (ms *MediaState) TrackInfo(id uint32) (track.Info, error) {
	t := track.Find(ms.Tracks, id)
	if t == nil {
		return track.Info{}, isobox.NewError(isobox.KindNotFound, "demux.MediaState.TrackInfo", fmt.Errorf("track %d not found", id))
	}
	return track.BuildInfo(t), nil
}
