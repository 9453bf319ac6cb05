package mux

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/demux"
	"github.com/tetsuo/isobox/track"
)

func TestAddSampleRejectsNonMonotonicDTS(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mux-*.mp4")
	require.NoError(t, err)
	defer f.Close()

	ms, err := New(f, 1024, Options{})
	require.NoError(t, err)

	tr := ms.AddTrack(track.KindVideo, 1000, track.AVCConfig{SPS: []byte{1}, PPS: []byte{2}})
	require.NoError(t, ms.AddSample(tr, []byte{0xAA}, 100, 0, false, true))

	err = ms.AddSample(tr, []byte{0xBB}, 50, 0, false, false)
	require.Error(t, err)
}

func TestAddSampleRejectsSyncOnNonVideo(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mux-*.mp4")
	require.NoError(t, err)
	defer f.Close()

	ms, err := New(f, 1024, Options{})
	require.NoError(t, err)

	tr := ms.AddTrack(track.KindAudio, 48000, track.AACConfig{Channels: 2})
	err = ms.AddSample(tr, []byte{0x00}, 0, 0, false, true)
	require.Error(t, err)
}

func TestCloseSortsEnabledBeforeDisabledWithinKind(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mux-*.mp4")
	require.NoError(t, err)
	defer f.Close()

	ms, err := New(f, 4096, Options{})
	require.NoError(t, err)

	disabled := ms.AddTrack(track.KindVideo, 1000, track.AVCConfig{SPS: []byte{1}, PPS: []byte{2}})
	disabled.Enabled = false
	enabled := ms.AddTrack(track.KindVideo, 1000, track.AVCConfig{SPS: []byte{3}, PPS: []byte{4}})
	enabled.Enabled = true

	require.NoError(t, ms.AddSample(disabled, []byte{0xAA}, 0, 0, false, true))
	require.NoError(t, ms.AddSample(enabled, []byte{0xBB}, 0, 0, false, true))

	require.NoError(t, ms.Close())

	require.Len(t, ms.tracks, 2)
	require.True(t, ms.tracks[0].t.Enabled, "enabled track must sort before disabled track of the same kind")
	require.False(t, ms.tracks[1].t.Enabled)
	require.Equal(t, uint32(1), ms.tracks[0].t.ID)
	require.Equal(t, uint32(2), ms.tracks[1].t.ID)
}

func TestOmitSttsSentinelShrinksMoov(t *testing.T) {
	build := func(omit bool) int {
		f, err := os.CreateTemp(t.TempDir(), "mux-*.mp4")
		require.NoError(t, err)
		defer f.Close()

		ms, err := New(f, 4096, Options{OmitSttsSentinel: omit})
		require.NoError(t, err)

		tr := ms.AddTrack(track.KindVideo, 1000, track.AVCConfig{SPS: []byte{1}, PPS: []byte{2}})
		require.NoError(t, ms.AddSample(tr, []byte{0xAA}, 0, 0, false, true))
		require.NoError(t, ms.AddSample(tr, []byte{0xBB}, 100, 0, false, false))
		require.NoError(t, ms.AddSample(tr, []byte{0xCC}, 200, 0, false, false))
		require.NoError(t, ms.Close())

		sc := isobox.NewScanner(f)
		for sc.Next() {
			e := sc.Entry()
			if e.Type == isobox.TypeMoov {
				return int(e.Size)
			}
		}
		require.NoError(t, sc.Err())
		t.Fatal("moov box not found")
		return 0
	}

	withSentinel := build(false)
	withoutSentinel := build(true)
	require.Less(t, withoutSentinel, withSentinel, "OmitSttsSentinel must actually drop the terminal stts run")
}

func TestCloseRoundTripsThroughDemux(t *testing.T) {
	path := t.TempDir() + "/out.mp4"
	f, err := os.Create(path)
	require.NoError(t, err)

	const mdatOffset = 4096
	require.NoError(t, f.Truncate(mdatOffset))

	ms, err := New(f, mdatOffset, Options{ReservedHeaderBytes: mdatOffset - 8})
	require.NoError(t, err)

	video := ms.AddTrack(track.KindVideo, 90000, track.AVCConfig{SPS: []byte{0x67, 0x01}, PPS: []byte{0x68, 0x02}})
	video.Width, video.Height = 1920, 1080

	require.NoError(t, ms.AddSample(video, []byte{0xAA, 0xAA, 0xAA}, 0, 0, false, true))
	require.NoError(t, ms.AddSample(video, []byte{0xBB, 0xBB}, 3000, 0, false, false))
	require.NoError(t, ms.AddSample(video, []byte{0xCC, 0xCC, 0xCC, 0xCC}, 6000, 0, false, true))

	require.NoError(t, ms.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := isobox.NewScanner(f)
	var moovData []byte
	var sawMdat bool
	for sc.Next() {
		e := sc.Entry()
		if e.Type == isobox.TypeMoov {
			moovData = make([]byte, e.Size)
			_, err := f.ReadAt(moovData, e.Offset)
			require.NoError(t, err)
		}
		if e.Type == isobox.TypeMdat {
			sawMdat = true
		}
	}
	require.NoError(t, sc.Err())
	require.NotNil(t, moovData, "moov box not found")
	require.True(t, sawMdat, "mdat box not found")

	media, err := demux.Open(moovData, demux.Options{})
	require.NoError(t, err)
	require.Len(t, media.Tracks, 1)

	info, err := media.TrackInfo(media.Tracks[0].ID)
	require.NoError(t, err)
	require.Equal(t, "avc1", info.CodecTag)
	require.Equal(t, 3, info.SampleCount)

	s1, err := demux.GetSample(media.Tracks[0], 1, 0)
	require.NoError(t, err)
	require.True(t, s1.Sync)
	require.Equal(t, uint64(3), s1.Size)

	buf := make([]byte, s1.Size)
	n, err := demux.ReadSampleData(f, s1, buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{0xAA, 0xAA, 0xAA}, buf)
}
