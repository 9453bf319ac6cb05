package mux

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/demux"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

func TestBoxTypeFromKey(t *testing.T) {
	require.Equal(t, isobox.BoxType{0xa9, 'A', 'R', 'T'}, boxTypeFromKey("\xa9ART"))
}

func TestIndexBoxType(t *testing.T) {
	require.Equal(t, isobox.BoxType{0, 0, 0, 1}, indexBoxType(1))
	require.Equal(t, isobox.BoxType{0, 0, 1, 0}, indexBoxType(256))
}

func TestSortedKeysIsDeterministic(t *testing.T) {
	store := meta.Store{
		"com.apple.quicktime.title":  {Kind: meta.KindUTF8, Bytes: []byte("b")},
		"com.apple.quicktime.artist": {Kind: meta.KindUTF8, Bytes: []byte("a")},
	}
	require.Equal(t, []string{"com.apple.quicktime.artist", "com.apple.quicktime.title"}, sortedKeys(store))
}

func TestMetaAndCoverRoundTripThroughDemux(t *testing.T) {
	path := t.TempDir() + "/meta.mp4"
	f, err := os.Create(path)
	require.NoError(t, err)

	const mdatOffset = 4096
	require.NoError(t, f.Truncate(mdatOffset))

	ms, err := New(f, mdatOffset, Options{ReservedHeaderBytes: mdatOffset - 8})
	require.NoError(t, err)

	aud := ms.AddTrack(track.KindAudio, 48000, track.AACConfig{Channels: 2, SampleSize: 16, SampleRate: 48000})
	require.NoError(t, ms.AddSample(aud, []byte{1, 2, 3}, 0, 0, false, false))

	ms.Meta().SetWellKnown(meta.PairArtist, meta.Value{Kind: meta.KindUTF8, Bytes: []byte("Boards of Canada")})
	ms.SetFileCover(meta.KindPNG, []byte{0x89, 'P', 'N', 'G'})

	require.NoError(t, ms.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := isobox.NewScanner(f)
	var moovData []byte
	for sc.Next() {
		e := sc.Entry()
		if e.Type == isobox.TypeMoov {
			moovData = make([]byte, e.Size)
			_, err := f.ReadAt(moovData, e.Offset)
			require.NoError(t, err)
		}
	}
	require.NoError(t, sc.Err())
	require.NotNil(t, moovData)

	media, err := demux.Open(moovData, demux.Options{})
	require.NoError(t, err)

	artist, ok := media.Meta.Get(meta.ScopeMeta, "com.apple.quicktime.artist")
	require.True(t, ok)
	require.Equal(t, "Boards of Canada", artist.String())

	udtaArtist, ok := media.Meta.Get(meta.ScopeUdta, "\xa9ART")
	require.True(t, ok)
	require.Equal(t, "Boards of Canada", udtaArtist.String())

	require.NotNil(t, media.Cover)
}
