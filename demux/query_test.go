package demux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/isobox/track"
)

func videoTrack() *track.Track {
	return &track.Track{
		ID:        1,
		Kind:      track.KindVideo,
		Timescale: 1000,
		Samples: track.Table{
			Sizes:       []uint64{10, 20, 30, 40, 50},
			DTS:         []uint64{0, 100, 200, 300, 400},
			Offsets:     []uint64{1000, 1010, 1030, 1060, 1100},
			SyncIndices: []uint32{1, 4},
		},
	}
}

func TestFindSampleByTimeExact(t *testing.T) {
	tr := videoTrack()
	idx, ok := FindSampleByTime(tr, 200, CompareExact)
	require.True(t, ok)
	require.Equal(t, uint32(3), idx)

	_, ok = FindSampleByTime(tr, 250, CompareExact)
	require.False(t, ok)
}

func TestFindSampleByTimeBounds(t *testing.T) {
	tr := videoTrack()

	idx, ok := FindSampleByTime(tr, 250, CompareLT)
	require.True(t, ok)
	require.Equal(t, uint32(3), idx)

	idx, ok = FindSampleByTime(tr, 250, CompareLTEq)
	require.True(t, ok)
	require.Equal(t, uint32(3), idx)

	idx, ok = FindSampleByTime(tr, 200, CompareGT)
	require.True(t, ok)
	require.Equal(t, uint32(4), idx)

	idx, ok = FindSampleByTime(tr, 200, CompareGTEq)
	require.True(t, ok)
	require.Equal(t, uint32(3), idx)

	_, ok = FindSampleByTime(tr, 0, CompareLT)
	require.False(t, ok)
}

func TestIsSyncSample(t *testing.T) {
	tr := videoTrack()
	require.True(t, IsSyncSample(tr, 1))
	require.False(t, IsSyncSample(tr, 2))
	require.True(t, IsSyncSample(tr, 4))
}

func TestSeekNearestSync(t *testing.T) {
	tr := videoTrack()

	index, silentFrom, ok := Seek(tr, 200, SeekNearestSync)
	require.True(t, ok)
	require.Equal(t, uint32(4), index)
	require.Equal(t, uint32(3), silentFrom)
}

func TestSeekNextSync(t *testing.T) {
	tr := videoTrack()

	index, silentFrom, ok := Seek(tr, 150, SeekNextSync)
	require.True(t, ok)
	require.Equal(t, uint32(4), index)
	require.Equal(t, uint32(2), silentFrom)
}

func TestSeekChaptersAlwaysFirst(t *testing.T) {
	tr := videoTrack()
	tr.Kind = track.KindChapters

	index, silentFrom, ok := Seek(tr, 999, SeekNearestSync)
	require.True(t, ok)
	require.Equal(t, uint32(1), index)
	require.Equal(t, uint32(0), silentFrom)
}

func TestGetSamplePastEndIsNotError(t *testing.T) {
	tr := videoTrack()
	s, err := GetSample(tr, 6, 0)
	require.NoError(t, err)
	require.Zero(t, s.Size)
}

func TestGetSampleSilentFlag(t *testing.T) {
	tr := videoTrack()
	s, err := GetSample(tr, 2, 4)
	require.NoError(t, err)
	require.True(t, s.Silent)

	s, err = GetSample(tr, 4, 4)
	require.NoError(t, err)
	require.False(t, s.Silent)
}

func audioTrack() *track.Track {
	return &track.Track{
		ID:        2,
		Kind:      track.KindAudio,
		Timescale: 1000,
		Samples: track.Table{
			Sizes:   []uint64{10, 20, 30, 40, 50},
			DTS:     []uint64{0, 100, 200, 300, 400},
			Offsets: []uint64{1000, 1010, 1030, 1060, 1100},
			// No stss box: every sample is sync.
		},
	}
}

func TestGetSampleSyncNeighborsWithNoStss(t *testing.T) {
	tr := audioTrack()

	s, err := GetSample(tr, 3, 0)
	require.NoError(t, err)
	require.True(t, s.Sync)
	require.Equal(t, uint64(100), s.PrevSyncDTS)
	require.Equal(t, uint64(300), s.NextSyncDTS)

	first, err := GetSample(tr, 1, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.PrevSyncDTS)
	require.Equal(t, uint64(100), first.NextSyncDTS)

	last, err := GetSample(tr, 5, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(300), last.PrevSyncDTS)
	require.Equal(t, uint64(400), last.NextSyncDTS)
}

func TestReadSampleData(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	r := bytes.NewReader(data)

	s := Sample{Size: 10, Offset: 0}
	buf := make([]byte, 10)
	n, err := ReadSampleData(r, s, buf)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "0123456789", string(buf))

	_, err = ReadSampleData(r, s, buf[:5])
	require.Error(t, err)
}
