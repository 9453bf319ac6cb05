package track

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddReferenceTruncatesAtMax(t *testing.T) {
	var tr Track
	ids := make([]uint32, MaxTrackReferences+10)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}

	tr.AddReference(ReferenceType{'c', 'h', 'a', 'p'}, ids)

	require.Len(t, tr.References, 1)
	require.Len(t, tr.References[0].TrackIDs, MaxTrackReferences)
	require.Equal(t, uint32(1), tr.References[0].TrackIDs[0])
}

func TestFind(t *testing.T) {
	a := &Track{ID: 1}
	b := &Track{ID: 2}
	tracks := []*Track{a, b}

	require.Same(t, b, Find(tracks, 2))
	require.Nil(t, Find(tracks, 99))
}

func TestCodecTag(t *testing.T) {
	cases := []struct {
		name   string
		codec  CodecConfig
		wanted string
	}{
		{"avc", AVCConfig{}, "avc1"},
		{"hevc", HEVCConfig{}, "hvc1"},
		{"aac", AACConfig{}, "mp4a"},
		{"none", nil, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr := &Track{Codec: c.codec}
			require.Equal(t, c.wanted, CodecTag(tr))
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "video", KindVideo.String())
	require.Equal(t, "chapters", KindChapters.String())
	require.Equal(t, "unknown", KindUnknown.String())
}

func TestBuildInfo(t *testing.T) {
	tr := &Track{
		ID:            7,
		Kind:          KindAudio,
		Timescale:     48000,
		DurationTicks: 96000,
		Enabled:       true,
		Codec:         AACConfig{Channels: 2},
		Samples: Table{
			Sizes: []uint64{10, 20, 30},
			DTS:   []uint64{0, 1024, 2048},
		},
	}

	info := BuildInfo(tr)
	require.Equal(t, uint32(7), info.ID)
	require.Equal(t, KindAudio, info.Kind)
	require.Equal(t, 3, info.SampleCount)
	require.Equal(t, "mp4a", info.CodecTag)
}
