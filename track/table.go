package track

import "fmt"

// Table is the flat, per-sample form of a sample table: one entry per
// index across Sizes, DTS and Offsets. It is the form both demux (after
// Expand) and mux (before Compress) operate on, since random-access
// query and incremental accumulation both want O(1) indexing rather
// than run-length decoding on every call.
type Table struct {
	Sizes   []uint64
	DTS     []uint64
	Offsets []uint64
	// CompositionOffsets holds the ctts-derived PTS-DTS offset per
	// sample. Nil means no ctts box (PTS == DTS for every sample).
	CompositionOffsets []int64
	// SyncIndices holds the ascending 1-based indices of sync samples
	// (an stss box). Nil means "all samples are sync", per the ISOBMFF
	// convention that a track with no stss has no non-sync samples.
	SyncIndices []uint32
}

// Len returns the sample count.
func (t *Table) Len() int { return len(t.Sizes) }

// IsSync reports whether the 1-based sample index is a sync sample.
func (t *Table) IsSync(index uint32) bool {
	if t.SyncIndices == nil {
		return true
	}
	for _, s := range t.SyncIndices {
		if s == index {
			return true
		}
		if s > index {
			break
		}
	}
	return false
}

// STTSRun is one time-to-sample compressed run.
type STTSRun struct {
	Count    uint32
	Duration uint32
}

// STSCRun is one sample-to-chunk compressed run.
type STSCRun struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionID uint32
}

// STSZForm is the compressed stsz form: either a uniform SampleSize with
// Sizes empty, or SampleSize == 0 with an explicit Sizes entry per
// sample.
type STSZForm struct {
	SampleSize uint32
	Sizes      []uint32
}

// CTTSRun is one composition-time-offset compressed run.
type CTTSRun struct {
	Count  uint32
	Offset int32
}

// Compressed is the on-disk run-length-encoded form of a sample table:
// stts/stsc/stsz/stco/ctts/stss exactly as they appear in a stbl box.
type Compressed struct {
	STTS         []STTSRun
	STSC         []STSCRun
	ChunkOffsets []uint64
	STSZ         STSZForm
	CTTS         []CTTSRun
	STSS         []uint32
}

// Expand turns the compressed, on-disk sample table into the flat,
// per-sample Table, cross-checking stts/stsc/stsz/stco consistency
// exactly as libmp4 does at parse time: a mismatch is reported as an
// error rather than silently truncating or padding.
func Expand(c Compressed) (Table, error) {
	sampleCount := len(c.STSZ.Sizes)
	if c.STSZ.SampleSize != 0 {
		sampleCount = sttsTotalCount(c.STTS)
	}
	if sampleCount == 0 {
		return Table{}, nil
	}

	if sttsSum := sttsTotalCount(c.STTS); sttsSum != sampleCount {
		return Table{}, fmt.Errorf("track: stts sample count %d does not match stsz sample count %d", sttsSum, sampleCount)
	}
	if len(c.STSC) == 0 {
		return Table{}, fmt.Errorf("track: empty stsc table")
	}
	if len(c.ChunkOffsets) == 0 {
		return Table{}, fmt.Errorf("track: empty chunk offset table")
	}

	t := Table{
		Sizes:   make([]uint64, sampleCount),
		DTS:     make([]uint64, sampleCount),
		Offsets: make([]uint64, sampleCount),
	}

	var hasCtts bool
	if len(c.CTTS) > 0 {
		hasCtts = true
		t.CompositionOffsets = make([]int64, sampleCount)
	}
	if len(c.STSS) > 0 {
		t.SyncIndices = append([]uint32(nil), c.STSS...)
	}

	stscIdx := 0
	curStsc := c.STSC[0]
	var nextStsc STSCRun
	haveNextStsc := len(c.STSC) > 1
	if haveNextStsc {
		nextStsc = c.STSC[1]
	}

	sttsIdx := 0
	curStts := c.STTS[0]
	sttsRemaining := int(curStts.Count)

	var cttsIdx int
	var curCtts CTTSRun
	var cttsRemaining int
	if hasCtts {
		curCtts = c.CTTS[0]
		cttsRemaining = int(curCtts.Count)
	}

	var chunkIdx uint32 = 1
	chunkOffset := c.ChunkOffsets[0]
	nextChunk := 1
	sampleInChunk := uint32(0)
	var offsetInChunk uint64
	var dts uint64

	for i := 0; i < sampleCount; i++ {
		var size uint64
		if c.STSZ.SampleSize != 0 {
			size = uint64(c.STSZ.SampleSize)
		} else {
			if i >= len(c.STSZ.Sizes) {
				return Table{}, fmt.Errorf("track: stsz table exhausted at sample %d/%d", i, sampleCount)
			}
			size = uint64(c.STSZ.Sizes[i])
		}

		t.Sizes[i] = size
		t.Offsets[i] = chunkOffset + offsetInChunk
		t.DTS[i] = dts
		if hasCtts && cttsRemaining > 0 {
			t.CompositionOffsets[i] = int64(curCtts.Offset)
		}

		if i+1 >= sampleCount {
			break
		}

		sampleInChunk++
		offsetInChunk += size
		if sampleInChunk >= curStsc.SamplesPerChunk {
			sampleInChunk = 0
			offsetInChunk = 0
			chunkIdx++
			if nextChunk >= len(c.ChunkOffsets) {
				return Table{}, fmt.Errorf("track: chunk offset table exhausted at chunk %d", chunkIdx)
			}
			chunkOffset = c.ChunkOffsets[nextChunk]
			nextChunk++
			if haveNextStsc && chunkIdx >= nextStsc.FirstChunk {
				curStsc = nextStsc
				stscIdx++
				if stscIdx+1 < len(c.STSC) {
					nextStsc = c.STSC[stscIdx+1]
				} else {
					haveNextStsc = false
				}
			}
		}

		dts += uint64(curStts.Duration)
		sttsRemaining--
		if sttsRemaining <= 0 {
			sttsIdx++
			if sttsIdx < len(c.STTS) {
				curStts = c.STTS[sttsIdx]
				sttsRemaining = int(curStts.Count)
			}
		}

		if hasCtts {
			cttsRemaining--
			if cttsRemaining <= 0 {
				cttsIdx++
				if cttsIdx < len(c.CTTS) {
					curCtts = c.CTTS[cttsIdx]
					cttsRemaining = int(curCtts.Count)
				}
			}
		}
	}

	return t, nil
}

func sttsTotalCount(runs []STTSRun) int {
	n := 0
	for _, r := range runs {
		n += int(r.Count)
	}
	return n
}

// Compress turns the flat Table back into its compressed, on-disk form.
// It always emits one sample per chunk (mux never coalesces samples
// into multi-sample chunks) and, by default, a terminal zero-duration
// stts sentinel for byte compatibility with libmp4 output; passing
// dropSttsSentinel=true instead gives the last sample the duration of
// the sample before it.
func Compress(t Table, dropSttsSentinel bool) Compressed {
	n := t.Len()
	c := Compressed{
		ChunkOffsets: append([]uint64(nil), t.Offsets...),
	}

	if n == 0 {
		return c
	}

	uniform := true
	for i := 1; i < n; i++ {
		if t.Sizes[i] != t.Sizes[0] {
			uniform = false
			break
		}
	}
	if uniform {
		c.STSZ.SampleSize = uint32(t.Sizes[0])
	} else {
		c.STSZ.Sizes = make([]uint32, n)
		for i, s := range t.Sizes {
			c.STSZ.Sizes[i] = uint32(s)
		}
	}

	for i := 0; i < n; i++ {
		c.STSC = append(c.STSC, STSCRun{
			FirstChunk:          uint32(i + 1),
			SamplesPerChunk:     1,
			SampleDescriptionID: 1,
		})
	}

	c.STTS = compressSTTS(t.DTS)
	if !dropSttsSentinel || len(c.STTS) == 0 {
		c.STTS = append(c.STTS, STTSRun{Count: 1, Duration: 0})
	} else {
		c.STTS[len(c.STTS)-1].Count++
	}

	if t.CompositionOffsets != nil {
		c.CTTS = compressCTTS(t.CompositionOffsets)
	}

	if t.SyncIndices != nil {
		c.STSS = append([]uint32(nil), t.SyncIndices...)
	}

	return c
}

func compressSTTS(dts []uint64) []STTSRun {
	if len(dts) == 0 {
		return nil
	}
	var runs []STTSRun
	for i := 1; i < len(dts); i++ {
		d := uint32(dts[i] - dts[i-1])
		if len(runs) > 0 && runs[len(runs)-1].Duration == d {
			runs[len(runs)-1].Count++
			continue
		}
		runs = append(runs, STTSRun{Count: 1, Duration: d})
	}
	return runs
}

func compressCTTS(offsets []int64) []CTTSRun {
	if len(offsets) == 0 {
		return nil
	}
	var runs []CTTSRun
	for _, o := range offsets {
		off := int32(o)
		if len(runs) > 0 && runs[len(runs)-1].Offset == off {
			runs[len(runs)-1].Count++
			continue
		}
		runs = append(runs, CTTSRun{Count: 1, Offset: off})
	}
	return runs
}
