// Package track models a single ISOBMFF track: its handler kind, codec
// configuration, and sample table, shared between the demux and mux
// packages (demux populates one per trak it parses; mux accumulates one
// per AddTrack call).
package track

import "time"

// Kind distinguishes the handler-type-derived purpose of a track.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
	KindHint
	KindMetadata
	KindText
	KindChapters
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindHint:
		return "hint"
	case KindMetadata:
		return "metadata"
	case KindText:
		return "text"
	case KindChapters:
		return "chapters"
	default:
		return "unknown"
	}
}

// MaxTrackReferences bounds the number of track IDs a tref entry can
// list. A fixed compile-time bound rather than a runtime option: no
// caller in the corpus this module was grounded on needs more, and an
// unbounded list reopens the allocation surface a bounded tref closes.
const MaxTrackReferences = 32

// ReferenceType is a tref entry's 4-CC type (e.g. "chap", "hint", "tmcd").
type ReferenceType [4]byte

// TrackReference is one tref entry: a reference type and the track IDs
// it lists, truncated at MaxTrackReferences.
type TrackReference struct {
	Type     ReferenceType
	TrackIDs []uint32
}

// CodecConfig is implemented by AVCConfig, HEVCConfig and AACConfig. It
// is a closed tagged union switched on by type assertion, never exposed
// as a nullable-field base struct, since the fields of one codec make no
// sense as zero values of another.
type CodecConfig interface {
	isCodecConfig()
}

// AVCConfig holds the avcC-derived parameter sets for an avc1 track.
// Only the first SPS and PPS are kept; see HEVCConfig for the analogous
// HEVC case.
type AVCConfig struct {
	SPS, PPS []byte
}

func (AVCConfig) isCodecConfig() {}

// HVCCInfo holds the fixed-layout general_profile_*/chroma_format/
// bit_depth fields that precede the hvcC array of NAL-unit groups.
type HVCCInfo struct {
	GeneralProfileSpace  uint8
	GeneralTierFlag      bool
	GeneralProfileIdc    uint8
	GeneralProfileCompat uint32
	GeneralConstraint    [6]byte
	GeneralLevelIdc      uint8
	ChromaFormat         uint8
	BitDepthLumaMinus8   uint8
	BitDepthChromaMinus8 uint8
}

// HEVCConfig holds the hvcC-derived parameter sets for an hvc1 track.
type HEVCConfig struct {
	VPS, SPS, PPS []byte
	Info          HVCCInfo
}

func (HEVCConfig) isCodecConfig() {}

// AACConfig holds the esds-derived decoder configuration for an mp4a
// track.
type AACConfig struct {
	// ASC is the raw AudioSpecificConfig payload (the esds
	// DecoderSpecificInfo), kept verbatim rather than bit-unpacked.
	ASC        []byte
	Channels   uint8
	SampleSize uint8
	SampleRate uint32
}

func (AACConfig) isCodecConfig() {}

// Track is one trak's worth of state: its handler metadata, codec
// configuration, and sample table.
type Track struct {
	ID            uint32
	Kind          Kind
	Timescale     uint32
	DurationTicks uint64
	CreatedAt     time.Time
	ModifiedAt    time.Time

	Enabled   bool
	InMovie   bool
	InPreview bool

	Name string

	References []TrackReference

	Codec CodecConfig

	Samples Table

	// Width and Height are the tkhd presentation dimensions in whole
	// pixels (the 16.16 fixed-point fields, already shifted).
	Width, Height uint16
}

// AddReference appends a reference, truncating TrackIDs to
// MaxTrackReferences if needed.
func (t *Track) AddReference(typ ReferenceType, trackIDs []uint32) {
	if len(trackIDs) > MaxTrackReferences {
		trackIDs = trackIDs[:MaxTrackReferences]
	}
	t.References = append(t.References, TrackReference{Type: typ, TrackIDs: trackIDs})
}

// Find returns the track with the given ID, or nil.
func Find(tracks []*Track, id uint32) *Track {
	for _, t := range tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
