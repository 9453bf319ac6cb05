package meta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetWellKnownMirrorsBothScopes(t *testing.T) {
	s := NewScopes()
	s.SetWellKnown(PairArtist, Value{Kind: KindUTF8, Bytes: []byte("Aphex Twin")})

	meta, ok := s.Get(ScopeMeta, "com.apple.quicktime.artist")
	require.True(t, ok)
	require.Equal(t, "Aphex Twin", meta.String())

	udta, ok := s.Get(ScopeUdta, "\xa9ART")
	require.True(t, ok)
	require.Equal(t, "Aphex Twin", udta.String())
}

func TestSetWellKnownDoesNotClobberExplicitOverride(t *testing.T) {
	s := NewScopes()
	s.Set(ScopeUdta, "\xa9ART", Value{Kind: KindUTF8, Bytes: []byte("explicit")})

	s.SetWellKnown(PairArtist, Value{Kind: KindUTF8, Bytes: []byte("mirrored")})

	udta, ok := s.Get(ScopeUdta, "\xa9ART")
	require.True(t, ok)
	require.Equal(t, "explicit", udta.String())

	meta, ok := s.Get(ScopeMeta, "com.apple.quicktime.artist")
	require.True(t, ok)
	require.Equal(t, "mirrored", meta.String())
}

func TestSetWellKnownUnknownPairIsNoop(t *testing.T) {
	s := NewScopes()
	s.SetWellKnown(PairKey(999), Value{Bytes: []byte("x")})
	require.Empty(t, s.Meta)
	require.Empty(t, s.Udta)
}

func TestSetLocationEncodesLengthAndLanguagePrefix(t *testing.T) {
	s := NewScopes()
	s.SetLocation("+40.6892-074.0445/")

	v, ok := s.Get(ScopeUdtaRoot, "\xa9xyz")
	require.True(t, ok)

	iso := "+40.6892-074.0445/"
	wantLen := len(iso)
	require.Equal(t, byte(wantLen>>8), v.Bytes[0])
	require.Equal(t, byte(wantLen), v.Bytes[1])
	require.Equal(t, byte(0), v.Bytes[2])
	require.Equal(t, byte(0), v.Bytes[3])
	require.Equal(t, iso, string(v.Bytes[4:]))
}

func TestGetMissingKey(t *testing.T) {
	s := NewScopes()
	_, ok := s.Get(ScopeMeta, "nonexistent")
	require.False(t, ok)
}
