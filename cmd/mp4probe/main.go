// Command mp4probe gathers information about tracks and keyframe distribution from an MP4 file.
package main

import (
	"fmt"
	"os"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/demux"
	"github.com/tetsuo/isobox/track"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	if err := probe(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func probe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	moovData, err := readMoov(f)
	if err != nil {
		return err
	}

	ms, err := demux.Open(moovData, demux.Options{})
	if err != nil {
		return err
	}

	for _, t := range ms.Tracks {
		info, err := ms.TrackInfo(t.ID)
		if err != nil {
			return err
		}
		printTrack(t, info)
	}
	return nil
}

// readMoov scans the top-level box list for moov and returns its full
// body, header included, ready for demux.Open.
func readMoov(f *os.File) ([]byte, error) {
	sc := isobox.NewScanner(f)
	for sc.Next() {
		e := sc.Entry()
		if e.Type != isobox.TypeMoov {
			continue
		}
		buf := make([]byte, e.Size)
		if _, err := f.ReadAt(buf, e.Offset); err != nil {
			return nil, fmt.Errorf("reading moov at offset %d: %w", e.Offset, err)
		}
		return buf, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("moov box not found")
}

func printTrack(t *track.Track, info track.Info) {
	codec := info.CodecTag
	if codec == "" {
		codec = "unknown"
	}
	fmt.Printf("Track %d: %s (%s)\n", info.ID, codec, info.Kind)
	fmt.Printf("  Total samples: %d\n", info.SampleCount)
	fmt.Printf("  Duration: %.2fs\n", float64(info.DurationTicks)/float64(info.Timescale))
	fmt.Printf("  TimeScale: %d\n\n", info.Timescale)

	n := uint32(info.SampleCount)
	sync := t.Samples.SyncIndices

	fmt.Println("  Keyframes:")
	var intervals []float64
	var prevPTS float64
	shown := 0
	total := 0
	for _, idx := range keyframeIndices(sync, n) {
		total++
		s, err := demux.GetSample(t, idx, 0)
		if err != nil || s.Size == 0 {
			continue
		}
		pts := float64(s.DTS) / float64(info.Timescale)
		if shown < 20 {
			fmt.Printf("    [%5d] %.3fs", idx, pts)
			if shown > 0 {
				interval := pts - prevPTS
				intervals = append(intervals, interval)
				fmt.Printf(" (%.3fs since last)", interval)
			}
			fmt.Println()
		}
		prevPTS = pts
		shown++
	}
	if total > 20 {
		fmt.Printf("    ... (%d more keyframes)\n", total-20)
	}

	fmt.Printf("\n  Total keyframes: %d\n", total)
	if len(intervals) > 0 {
		fmt.Printf("  Keyframe interval: avg=%.3fs min=%.3fs max=%.3fs\n", average(intervals), minimum(intervals), maximum(intervals))
	}
	fmt.Println()
}

// keyframeIndices returns the 1-based sync sample indices for a track,
// or every sample index if the track carries no stss (every sample is
// then implicitly sync).
func keyframeIndices(sync []uint32, n uint32) []uint32 {
	if sync != nil {
		return sync
	}
	all := make([]uint32, n)
	for i := range all {
		all[i] = uint32(i + 1)
	}
	return all
}

func average(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minimum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

func maximum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
