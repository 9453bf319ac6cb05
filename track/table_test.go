package track

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandCompressRoundTrip(t *testing.T) {
	tbl := Table{
		Sizes:              []uint64{10, 20, 30, 40},
		DTS:                []uint64{0, 1000, 2000, 3000},
		Offsets:            []uint64{100, 110, 130, 160},
		CompositionOffsets: []int64{0, 500, 0, 500},
		SyncIndices:        []uint32{1, 3},
	}

	c := Compress(tbl, true)
	got, err := Expand(c)
	require.NoError(t, err)

	require.Equal(t, tbl.Sizes, got.Sizes)
	require.Equal(t, tbl.DTS, got.DTS)
	require.Equal(t, tbl.CompositionOffsets, got.CompositionOffsets)
	require.Equal(t, tbl.SyncIndices, got.SyncIndices)
}

func TestCompressUniformStsz(t *testing.T) {
	tbl := Table{
		Sizes:   []uint64{512, 512, 512},
		DTS:     []uint64{0, 1024, 2048},
		Offsets: []uint64{0, 512, 1024},
	}
	c := Compress(tbl, true)
	require.Equal(t, uint32(512), c.STSZ.SampleSize)
	require.Nil(t, c.STSZ.Sizes)
}

func TestCompressNonUniformStsz(t *testing.T) {
	tbl := Table{
		Sizes:   []uint64{512, 256, 512},
		DTS:     []uint64{0, 1024, 2048},
		Offsets: []uint64{0, 512, 768},
	}
	c := Compress(tbl, true)
	require.Equal(t, uint32(0), c.STSZ.SampleSize)
	require.Equal(t, []uint32{512, 256, 512}, c.STSZ.Sizes)
}

func TestCompressSttsSentinel(t *testing.T) {
	tbl := Table{
		Sizes:   []uint64{10, 10},
		DTS:     []uint64{0, 1000},
		Offsets: []uint64{0, 10},
	}

	withSentinel := Compress(tbl, false)
	last := withSentinel.STTS[len(withSentinel.STTS)-1]
	require.Equal(t, uint32(0), last.Duration)

	withoutSentinel := Compress(tbl, true)
	for _, run := range withoutSentinel.STTS {
		require.NotZero(t, run.Duration)
	}
}

func TestExpandDetectsSttsStszMismatch(t *testing.T) {
	c := Compressed{
		STTS:         []STTSRun{{Count: 2, Duration: 1000}},
		STSC:         []STSCRun{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionID: 1}},
		ChunkOffsets: []uint64{0, 10, 20},
		STSZ:         STSZForm{Sizes: []uint32{10, 10, 10}},
	}
	_, err := Expand(c)
	require.Error(t, err)
}

func TestExpandRejectsEmptyStsc(t *testing.T) {
	c := Compressed{
		STTS:         []STTSRun{{Count: 1, Duration: 1000}},
		ChunkOffsets: []uint64{0},
		STSZ:         STSZForm{Sizes: []uint32{10}},
	}
	_, err := Expand(c)
	require.Error(t, err)
}

func TestTableIsSync(t *testing.T) {
	tbl := Table{SyncIndices: []uint32{1, 4}}
	require.True(t, tbl.IsSync(1))
	require.False(t, tbl.IsSync(2))
	require.True(t, tbl.IsSync(4))

	allSync := Table{}
	require.True(t, allSync.IsSync(7))
}

func TestMultiChunkExpand(t *testing.T) {
	c := Compressed{
		STTS:         []STTSRun{{Count: 4, Duration: 512}},
		STSC:         []STSCRun{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionID: 1}},
		ChunkOffsets: []uint64{1000, 2000},
		STSZ:         STSZForm{SampleSize: 100},
	}
	tbl, err := Expand(c)
	require.NoError(t, err)
	require.Equal(t, []uint64{1000, 1100, 2000, 2100}, tbl.Offsets)
	require.Equal(t, []uint64{0, 512, 1024, 1536}, tbl.DTS)
}
