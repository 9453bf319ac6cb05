// Package meta models the metadata surface of an MP4 file: the
// moov/meta (reverse-DNS-keyed, "META"), udta/meta (4-CC-keyed, "UDTA")
// and bare udta (4-CC-keyed, "UDTA_ROOT") scopes, plus the well-known
// key table that mirrors common fields between META and UDTA.
package meta

// ValueKind identifies the wire encoding of a metadata value's payload,
// matching the iTunes-style data box type indicator.
type ValueKind uint32

const (
	KindUTF8 ValueKind = 1
	KindJPEG ValueKind = 13
	KindPNG  ValueKind = 14
	KindBMP  ValueKind = 27
)

// Value is one metadata entry: its payload kind and raw bytes.
type Value struct {
	Kind  ValueKind
	Bytes []byte
}

// String returns v.Bytes interpreted as UTF-8 text.
func (v Value) String() string { return string(v.Bytes) }

// Store is a flat key -> Value map for one scope.
type Store map[string]Value

// Scope identifies one of the three metadata storage locations.
type Scope int

const (
	ScopeMeta Scope = iota
	ScopeUdta
	ScopeUdtaRoot
)

// Scopes holds all three metadata stores for a media file or mux
// session.
type Scopes struct {
	Meta     Store
	Udta     Store
	UdtaRoot Store
}

// NewScopes returns an empty Scopes with all three stores allocated.
func NewScopes() Scopes {
	return Scopes{Meta: Store{}, Udta: Store{}, UdtaRoot: Store{}}
}

// Get looks up key in the given scope.
func (s Scopes) Get(scope Scope, key string) (Value, bool) {
	v, ok := s.store(scope)[key]
	return v, ok
}

// Set stores key=value in the given scope directly, without well-known
// mirroring. Use SetWellKnown for fields that should mirror.
func (s Scopes) Set(scope Scope, key string, v Value) {
	s.store(scope)[key] = v
}

func (s Scopes) store(scope Scope) Store {
	switch scope {
	case ScopeMeta:
		return s.Meta
	case ScopeUdta:
		return s.Udta
	default:
		return s.UdtaRoot
	}
}

// PairKey names a well-known metadata field that mirrors between the
// META (reverse-DNS) and UDTA (4-CC) scopes.
type PairKey int

const (
	PairArtist PairKey = iota
	PairTitle
	PairComment
	PairCopyright
	PairDate
	PairMake
	PairModel
	PairSoftware
)

// wellKnownPair names the META reverse-DNS key and UDTA 4-CC key for one
// mirrored field.
type wellKnownPair struct {
	metaKey string
	udtaKey string
}

// WellKnownPairs maps each PairKey to its META/UDTA key pair.
var WellKnownPairs = map[PairKey]wellKnownPair{
	PairArtist:    {"com.apple.quicktime.artist", "\xa9ART"},
	PairTitle:     {"com.apple.quicktime.title", "\xa9nam"},
	PairComment:   {"com.apple.quicktime.comment", "\xa9cmt"},
	PairCopyright: {"com.apple.quicktime.copyright", "\xa9cpy"},
	PairDate:      {"com.apple.quicktime.creationdate", "\xa9day"},
	PairMake:      {"com.apple.quicktime.make", "\xa9mak"},
	PairModel:     {"com.apple.quicktime.model", "\xa9mod"},
	PairSoftware:  {"com.apple.quicktime.software", "\xa9swr"},
}

// SetWellKnown stores v under pair's META and UDTA keys. If either scope
// already has an explicit value for that key, that scope is left
// untouched (the two scopes mirror by default but don't clobber a
// caller's explicit per-scope override).
func (s Scopes) SetWellKnown(pair PairKey, v Value) {
	wk, ok := WellKnownPairs[pair]
	if !ok {
		return
	}
	if _, exists := s.Meta[wk.metaKey]; !exists {
		s.Meta[wk.metaKey] = v
	}
	if _, exists := s.Udta[wk.udtaKey]; !exists {
		s.Udta[wk.udtaKey] = v
	}
}

// locationTag is the 4-CC for the UDTA_ROOT location field ("©xyz").
const locationTag = "\xa9xyz"

// SetLocation writes an ISO-6709 location string to UDTA_ROOT's "©xyz"
// entry with the 2-byte length + 2-byte language code prefix QuickTime
// expects ahead of the text payload.
func (s Scopes) SetLocation(iso6709 string) {
	payload := make([]byte, 4+len(iso6709))
	payload[0] = byte(len(iso6709) >> 8)
	payload[1] = byte(len(iso6709))
	payload[2] = 0 // language code: undetermined
	payload[3] = 0
	copy(payload[4:], iso6709)
	s.UdtaRoot[locationTag] = Value{Kind: KindUTF8, Bytes: payload}
}
