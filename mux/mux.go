// Package mux accumulates samples incrementally and emits a complete
// non-fragmented moov box on Close, with an optional crash-recovery
// journal written alongside.
package mux

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

// growthStep is the fixed growth increment for a track's sample
// arrays: each time capacity runs out, it grows by this many more
// samples rather than doubling, matching the fixed-step growth policy
// of the original accumulator this module replaces.
const growthStep = 128

// RecoveryOptions enables the crash-recovery journal. Both paths are
// required; LinkPath is the small text link file, TablesPath the binary
// append-only records file.
type RecoveryOptions struct {
	LinkPath    string
	TablesPath  string
	MediaPath   string
	StorageUUID [16]byte
	CheckUUID   bool
}

// Options configures a MuxState.
type Options struct {
	// ReservedHeaderBytes sizes the prereserved moov region written up
	// front so Close can usually patch it in place instead of falling
	// back to a tail append (spec.md §4.7). Zero disables prereservation.
	ReservedHeaderBytes int
	// OmitSttsSentinel drops the terminal zero-duration stts run mux
	// emits by default for byte compatibility with libmp4 output.
	OmitSttsSentinel bool
	Recovery         *RecoveryOptions
	Logger           *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// accum is the growable, per-sample accumulator backing one track
// during muxing. It mirrors track.Table's flat layout but grows its
// backing arrays in fixed steps rather than relying solely on append's
// amortized doubling, so large files don't repeatedly copy arrays sized
// just past a power of two.
type accum struct {
	sizes   []uint64
	dts     []uint64
	offsets []uint64
	comp    []int64
	sync    []uint32
	hasComp bool
	hasSync bool
}

func (a *accum) grow(n int) {
	if cap(a.sizes) >= n {
		return
	}
	newCap := cap(a.sizes)
	if newCap == 0 {
		newCap = growthStep
	}
	for newCap < n {
		newCap += growthStep
	}
	regrow := func(s []uint64) []uint64 {
		grown := make([]uint64, len(s), newCap)
		copy(grown, s)
		return grown
	}
	a.sizes = regrow(a.sizes)
	a.dts = regrow(a.dts)
	a.offsets = regrow(a.offsets)
}

func (a *accum) append(size, dts, offset uint64, comp int64, hasComp bool, sync bool) {
	a.grow(len(a.sizes) + 1)
	a.sizes = append(a.sizes, size)
	a.dts = append(a.dts, dts)
	a.offsets = append(a.offsets, offset)
	if hasComp {
		a.hasComp = true
	}
	if a.hasComp {
		for len(a.comp) < len(a.sizes)-1 {
			a.comp = append(a.comp, 0)
		}
		a.comp = append(a.comp, comp)
	}
	if sync {
		a.hasSync = true
		a.sync = append(a.sync, uint32(len(a.sizes)))
	}
}

func (a *accum) table() track.Table {
	t := track.Table{Sizes: a.sizes, DTS: a.dts, Offsets: a.offsets}
	if a.hasComp {
		t.CompositionOffsets = a.comp
	}
	if a.hasSync {
		t.SyncIndices = a.sync
	}
	return t
}

// trackState is a track under construction plus its accumulator.
type trackState struct {
	t       *track.Track
	acc     accum
	lastDTS uint64
	hasDTS  bool
}

// MuxState owns the track list, sample accumulators, output file, and
// optional recovery handles for one mux session. Not safe for
// concurrent use from multiple goroutines without external
// synchronization.
type MuxState struct {
	file       *os.File
	opts       Options
	logger     *slog.Logger
	nextID     uint32
	tracks     []*trackState
	meta       meta.Scopes
	cover      *meta.CoverBytes
	journal    *journal
	mdatOffset uint64 // file offset where sample data begins
	cursor     uint64 // next free offset within mdat, relative to mdatOffset
}

// New creates a MuxState writing to file. mdatOffset is the file offset
// where sample data begins, normally ReservedHeaderBytes (which holds
// ftyp and moov) plus the 8-byte mdat header.
func New(file *os.File, mdatOffset uint64, opts Options) (*MuxState, error) {
	ms := &MuxState{
		file:       file,
		opts:       opts,
		logger:     opts.logger(),
		nextID:     1,
		meta:       meta.NewScopes(),
		mdatOffset: mdatOffset,
	}
	if opts.Recovery != nil {
		j, err := newJournal(*opts.Recovery)
		if err != nil {
			return nil, isobox.NewError(isobox.KindIoError, "mux.New", err)
		}
		ms.journal = j
	}
	return ms, nil
}

// AddTrack registers a new track with the given kind and codec
// configuration and returns it for use with AddSample.
func (ms *MuxState) AddTrack(kind track.Kind, timescale uint32, codec track.CodecConfig) *track.Track {
	t := &track.Track{
		ID:         ms.nextID,
		Kind:       kind,
		Timescale:  timescale,
		Codec:      codec,
		Enabled:    true,
		InMovie:    true,
		CreatedAt:  time.Time{},
		ModifiedAt: time.Time{},
	}
	ms.nextID++
	ms.tracks = append(ms.tracks, &trackState{t: t})
	return t
}

// AddSample appends one sample to t's accumulator and writes its bytes
// to the next free offset within mdat. dts must be >= the previous
// sample's dts (non-decreasing, spec.md §4.6); sync must only be
// set true for video tracks, since audio/metadata/text/hint/chapters
// tracks have no sync-sample concept under this library.
func (ms *MuxState) AddSample(t *track.Track, data []byte, dts uint64, compOffset int64, hasComp bool, sync bool) error {
	ts := ms.trackState(t)
	if ts == nil {
		return isobox.NewError(isobox.KindInvalidArgument, "mux.MuxState.AddSample", fmt.Errorf("unknown track %d", t.ID))
	}
	if sync && t.Kind != track.KindVideo {
		return isobox.NewError(isobox.KindInvalidArgument, "mux.MuxState.AddSample", fmt.Errorf("sync flag only valid for video tracks"))
	}
	if ts.hasDTS && dts < ts.lastDTS {
		return isobox.NewError(isobox.KindProtocolError, "mux.MuxState.AddSample", fmt.Errorf("dts %d precedes previous dts %d", dts, ts.lastDTS))
	}
	ts.lastDTS = dts
	ts.hasDTS = true

	offset := ms.mdatOffset + ms.cursor
	if _, err := ms.file.WriteAt(data, int64(offset)); err != nil {
		return isobox.NewError(isobox.KindIoError, "mux.MuxState.AddSample", err)
	}
	ms.cursor += uint64(len(data))
	ts.acc.append(uint64(len(data)), dts, offset, compOffset, hasComp, sync)
	return nil
}

func (ms *MuxState) trackState(t *track.Track) *trackState {
	for _, ts := range ms.tracks {
		if ts.t == t {
			return ts
		}
	}
	return nil
}

// trackPriority orders tracks the way Close dense-renumbers and emits
// them: video, then audio, then hint, metadata, text, chapters.
func trackPriority(k track.Kind) int {
	switch k {
	case track.KindVideo:
		return 0
	case track.KindAudio:
		return 1
	case track.KindHint:
		return 2
	case track.KindMetadata:
		return 3
	case track.KindText:
		return 4
	case track.KindChapters:
		return 5
	default:
		return 6
	}
}

// Sync flushes accumulated samples to the recovery journal, if enabled,
// without finalizing the moov box. Call Close to produce a valid file.
func (ms *MuxState) Sync() error {
	if err := ms.flushJournal(); err != nil {
		return isobox.NewError(isobox.KindIoError, "mux.MuxState.Sync", err)
	}
	return nil
}

// flushJournal appends every not-yet-journaled track descriptor, sample
// row, metadata entry and cover to the tables file and updates the link
// file, if a recovery journal is enabled. It is a no-op otherwise.
func (ms *MuxState) flushJournal() error {
	if ms.journal == nil {
		return nil
	}
	for _, ts := range ms.tracks {
		if err := ms.journal.appendTrackDescriptor(ts.t); err != nil {
			return err
		}
		if err := ms.journal.appendSamples(ts.t, &ts.acc); err != nil {
			return err
		}
	}
	if err := ms.journal.appendMeta(ms.meta); err != nil {
		return err
	}
	if err := ms.journal.appendCover(ms.cover); err != nil {
		return err
	}
	return ms.journal.writeLinkFile()
}

// Close finalizes each track's sample table, sorts and dense-renumbers
// tracks by priority, and emits the complete moov box (and ftyp) to the
// output file.
func (ms *MuxState) Close() error {
	if err := ms.flushJournal(); err != nil {
		return isobox.NewError(isobox.KindIoError, "mux.MuxState.Close", err)
	}

	sort.SliceStable(ms.tracks, func(i, j int) bool {
		pi, pj := trackPriority(ms.tracks[i].t.Kind), trackPriority(ms.tracks[j].t.Kind)
		if pi != pj {
			return pi < pj
		}
		// Same kind: enabled tracks sort before disabled ones.
		return ms.tracks[i].t.Enabled && !ms.tracks[j].t.Enabled
	})
	for i, ts := range ms.tracks {
		ts.t.ID = uint32(i + 1)
		ts.t.Samples = ts.acc.table()
	}

	if ms.journal != nil {
		if err := ms.journal.close(); err != nil {
			return isobox.NewError(isobox.KindIoError, "mux.MuxState.Close", err)
		}
	}

	tracks := make([]*track.Track, len(ms.tracks))
	for i, ts := range ms.tracks {
		tracks[i] = ts.t
	}

	return writeMoov(ms.file, tracks, ms.meta, ms.cover, ms.opts)
}

// SetFileCover sets the file-level cover art, written on Close as the
// "covr" item of the udta/meta/ilst table.
func (ms *MuxState) SetFileCover(kind meta.ValueKind, data []byte) {
	ms.cover = &meta.CoverBytes{Kind: kind, Bytes: data}
}

// Meta returns the metadata scopes for this session; callers mutate it
// directly via Scopes.Set/SetWellKnown/SetLocation before Close.
func (ms *MuxState) Meta() meta.Scopes { return ms.meta }
