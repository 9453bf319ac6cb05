package mux

import (
	"os"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

var compatibleBrands = [][4]byte{
	{'i', 's', 'o', 'm'},
	{'i', 's', 'o', '2'},
	{'m', 'p', '4', '1'},
	{'a', 'v', 'c', '1'},
}

// estimateMoovSize returns a conservative upper bound on the serialized
// moov size so the writer's fixed buffer never runs out mid-box. Each
// sample contributes its worst-case stts+stsc+stsz+stco+ctts+stss
// per-entry cost; headers and metadata get a fixed allowance.
func estimateMoovSize(tracks []*track.Track, scopes meta.Scopes, cover *meta.CoverBytes) int {
	size := 4096
	for _, t := range tracks {
		n := t.Samples.Len()
		size += 512                     // tkhd/mdhd/hdlr/vmhd/stsd headers
		size += n * (8 + 12 + 4 + 8 + 8 + 4) // stts + stsc + stsz + stco/co64 + ctts + stss worst case
		switch c := t.Codec.(type) {
		case track.AVCConfig:
			size += len(c.SPS) + len(c.PPS) + 64
		case track.HEVCConfig:
			size += len(c.VPS) + len(c.SPS) + len(c.PPS) + 96
		case track.AACConfig:
			size += len(c.ASC) + 64
		}
	}
	size += metaStoreSize(scopes.Meta) + metaStoreSize(scopes.Udta) + metaStoreSize(scopes.UdtaRoot)
	if cover != nil {
		size += len(cover.Bytes) + 256
	}
	return size
}

func metaStoreSize(store meta.Store) int {
	size := 0
	for k, v := range store {
		size += len(k) + len(v.Bytes) + 64
	}
	return size
}

// writeMoov serializes ftyp + moov for tracks to file at offset 0, then
// writes the mdat header immediately before the already-written sample
// data at mdatOffset. The caller is responsible for having reserved
// opts.ReservedHeaderBytes at the start of the file before any
// AddSample call landed bytes past it.
func writeMoov(file *os.File, tracks []*track.Track, scopes meta.Scopes, cover *meta.CoverBytes, opts Options) error {
	buf := make([]byte, estimateMoovSize(tracks, scopes, cover))
	w := isobox.NewWriter(buf)

	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 2, compatibleBrands)

	w.StartBox(isobox.TypeMoov)
	writeMvhd(&w, tracks)
	for _, t := range tracks {
		writeTrak(&w, t, opts.OmitSttsSentinel)
	}
	if hasMeta(scopes) || cover != nil {
		writeUdta(&w, scopes, cover)
	}
	w.EndBox()

	header := w.Bytes()

	if opts.ReservedHeaderBytes > 0 && len(header) <= opts.ReservedHeaderBytes {
		padded := make([]byte, opts.ReservedHeaderBytes)
		copy(padded, header)
		pw := isobox.NewWriter(padded[len(header):])
		pw.WriteFree(isobox.TypeFree, opts.ReservedHeaderBytes-len(header))
		copy(padded[len(header):], pw.Bytes())
		header = padded
	}

	if _, err := file.WriteAt(header, 0); err != nil {
		return isobox.NewError(isobox.KindIoError, "mux.writeMoov", err)
	}

	if start, end, ok := mdatBounds(tracks); ok && start >= 8 {
		var mdatHeader [8]byte
		be.PutUint32(mdatHeader[0:4], uint32(end-(start-8)))
		copy(mdatHeader[4:8], "mdat")
		if _, err := file.WriteAt(mdatHeader[:], int64(start-8)); err != nil {
			return isobox.NewError(isobox.KindIoError, "mux.writeMoov", err)
		}
	}

	return nil
}

// mdatBounds returns the lowest sample offset and the highest
// offset+size across every track, the span an mdat box header must
// cover. It works uniformly for a freshly accumulated file (offsets
// laid out contiguously from mdatOffset) and a recovered one (offsets
// are whatever was already on disk before the crash).
func mdatBounds(tracks []*track.Track) (start, end uint64, ok bool) {
	for _, t := range tracks {
		for i, o := range t.Samples.Offsets {
			sz := t.Samples.Sizes[i]
			if !ok {
				start, end, ok = o, o+sz, true
				continue
			}
			if o < start {
				start = o
			}
			if o+sz > end {
				end = o + sz
			}
		}
	}
	return start, end, ok
}

func hasMeta(s meta.Scopes) bool {
	return len(s.Meta) > 0 || len(s.Udta) > 0 || len(s.UdtaRoot) > 0
}

func writeMvhd(w *isobox.Writer, tracks []*track.Track) {
	var duration uint64
	var timescale uint32 = 1000
	if len(tracks) > 0 {
		timescale = tracks[0].Timescale
	}
	for _, t := range tracks {
		d := scaleDuration(t.DurationTicks, t.Timescale, timescale)
		if d > duration {
			duration = d
		}
	}
	w.WriteMvhd(0, 0, timescale, duration, uint32(len(tracks)+1))
}

func scaleDuration(ticks uint64, from, to uint32) uint64 {
	if from == 0 || from == to {
		return ticks
	}
	return ticks * uint64(to) / uint64(from)
}

func writeTrak(w *isobox.Writer, t *track.Track, omitSttsSentinel bool) {
	w.StartBox(isobox.TypeTrak)
	flags := uint32(0)
	if t.Enabled {
		flags |= 0x1
	}
	if t.InMovie {
		flags |= 0x2
	}
	if t.InPreview {
		flags |= 0x4
	}
	w.WriteTkhd(0, 0, flags, t.ID, t.DurationTicks, uint32(t.Width)<<16, uint32(t.Height)<<16)

	if len(t.References) > 0 {
		w.StartBox(isobox.TypeTref)
		for _, ref := range t.References {
			w.StartBox(isobox.BoxType(ref.Type))
			for _, id := range ref.TrackIDs {
				w.PutUint32(id)
			}
			w.EndBox()
		}
		w.EndBox()
	}

	w.StartBox(isobox.TypeMdia)
	w.WriteMdhd(0, 0, t.Timescale, t.DurationTicks, 0x55c4)
	w.WriteHdlr(handlerTypeFor(t.Kind), t.Name)

	w.StartBox(isobox.TypeMinf)
	switch t.Kind {
	case track.KindVideo:
		w.WriteVmhd()
	case track.KindAudio:
		w.WriteSmhd()
	default:
		w.WriteNmhd()
	}
	w.StartBox(isobox.TypeDinf)
	w.WriteDref()
	w.EndBox()

	w.StartBox(isobox.TypeStbl)
	writeStsd(w, t)
	c := track.Compress(t.Samples, omitSttsSentinel)
	w.WriteStts(toSttsEntries(c.STTS))
	if len(c.CTTS) > 0 {
		w.WriteCtts(toCttsEntries(c.CTTS))
	}
	w.WriteStsc(toStscEntries(c.STSC))
	stszSizes := c.STSZ.Sizes
	if c.STSZ.SampleSize != 0 {
		// Uniform size: only the entry count is written.
		stszSizes = make([]uint32, t.Samples.Len())
	}
	w.WriteStsz(c.STSZ.SampleSize, stszSizes)
	if needsCo64(c.ChunkOffsets) {
		w.WriteCo64(c.ChunkOffsets)
	} else {
		w.WriteStco(toUint32Offsets(c.ChunkOffsets))
	}
	if len(c.STSS) > 0 {
		w.WriteStss(c.STSS)
	}
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

func needsCo64(offsets []uint64) bool {
	for _, o := range offsets {
		if o > 0xffffffff {
			return true
		}
	}
	return false
}

func toUint32Offsets(offsets []uint64) []uint32 {
	out := make([]uint32, len(offsets))
	for i, o := range offsets {
		out[i] = uint32(o)
	}
	return out
}

func toSttsEntries(runs []track.STTSRun) []isobox.SttsEntry {
	out := make([]isobox.SttsEntry, len(runs))
	for i, r := range runs {
		out[i] = isobox.SttsEntry{Count: r.Count, Duration: r.Duration}
	}
	return out
}

func toCttsEntries(runs []track.CTTSRun) []isobox.CttsEntry {
	out := make([]isobox.CttsEntry, len(runs))
	for i, r := range runs {
		out[i] = isobox.CttsEntry{Count: r.Count, Offset: r.Offset}
	}
	return out
}

func toStscEntries(runs []track.STSCRun) []isobox.StscEntry {
	out := make([]isobox.StscEntry, len(runs))
	for i, r := range runs {
		out[i] = isobox.StscEntry{
			FirstChunk:          r.FirstChunk,
			SamplesPerChunk:     r.SamplesPerChunk,
			SampleDescriptionId: r.SampleDescriptionID,
		}
	}
	return out
}

func handlerTypeFor(k track.Kind) [4]byte {
	switch k {
	case track.KindVideo:
		return [4]byte{'v', 'i', 'd', 'e'}
	case track.KindAudio:
		return [4]byte{'s', 'o', 'u', 'n'}
	case track.KindMetadata:
		return [4]byte{'m', 'e', 't', 'a'}
	case track.KindText:
		return [4]byte{'t', 'e', 'x', 't'}
	case track.KindHint:
		return [4]byte{'h', 'i', 'n', 't'}
	case track.KindChapters:
		return [4]byte{'c', 'h', 'a', 'p'}
	default:
		return [4]byte{'u', 'n', 'd', 'n'}
	}
}

func writeStsd(w *isobox.Writer, t *track.Track) {
	w.StartFullBox(isobox.BoxType{'s', 't', 's', 'd'}, 0, 0)
	w.PutUint32(1) // entry count

	switch c := t.Codec.(type) {
	case track.AVCConfig:
		w.StartBox(isobox.TypeAvc1)
		w.WriteVisualSampleEntry(1, t.Width, t.Height, 1, 0x0018, "")
		w.WriteAvcC(0x64, 0x00, 0x1e, c.SPS, c.PPS)
		w.EndBox()
	case track.HEVCConfig:
		w.StartBox(isobox.TypeHvc1)
		w.WriteVisualSampleEntry(1, t.Width, t.Height, 1, 0x0018, "")
		w.WriteHvcC(isobox.HVCCInfo(c.Info), c.VPS, c.SPS, c.PPS)
		w.EndBox()
	case track.AACConfig:
		w.StartBox(isobox.TypeMp4a)
		w.WriteAudioSampleEntry(1, uint16(c.Channels), uint16(c.SampleSize), c.SampleRate<<16)
		w.WriteEsds(2, isobox.DecoderConfig{
			ObjectTypeIndication: 0x40,
			StreamType:           5,
			SpecificInfo:         c.ASC,
		})
		w.EndBox()
	}

	w.EndBox()
}
