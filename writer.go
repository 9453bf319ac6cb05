package isobox

// writerFrame tracks the start offset of a box for size backpatching.
type writerFrame struct {
	offset int
}

// Writer encodes ISOBMFF boxes into a byte buffer.
type Writer struct {
	buf   []byte
	pos   int
	stack [maxDepth]writerFrame
	depth int
}

// NewWriter creates a Writer that writes into buf.
func NewWriter(buf []byte) Writer {
	return Writer{buf: buf[:cap(buf)]}
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte { return w.buf[:w.pos] }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.pos }

// Cap returns the writer's backing buffer capacity.
func (w *Writer) Cap() int { return len(w.buf) }

// Write appends raw bytes. Implements io.Writer. Returns a BufferExhausted
// *Error if buf has no room left, rather than silently truncating
// (spec.md §4.1).
func (w *Writer) Write(p []byte) (int, error) {
	if w.pos+len(p) > len(w.buf) {
		return 0, NewError(KindBufferExhausted, "isobox.Writer.Write", nil)
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *Writer) putUint8(v byte) {
	w.buf[w.pos] = v
	w.pos++
}

func (w *Writer) putUint16(v uint16) {
	be.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

func (w *Writer) putUint32(v uint32) {
	be.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *Writer) putUint64(v uint64) {
	be.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

func (w *Writer) putInt32(v int32) { w.putUint32(uint32(v)) }

func (w *Writer) putZeros(n int) {
	clear(w.buf[w.pos : w.pos+n])
	w.pos += n
}

func (w *Writer) putBytes(p []byte) {
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
}

func (w *Writer) putFixedString(s string, length int) {
	n := copy(w.buf[w.pos:w.pos+length], s)
	clear(w.buf[w.pos+n : w.pos+length])
	w.pos += length
}

// PutUint32 appends a raw big-endian uint32, for callers building
// box-specific entry lists (e.g. tref track ID arrays, stsd entry
// counts) that have no dedicated Write* method.
func (w *Writer) PutUint32(v uint32) { w.putUint32(v) }

// PutUint16 appends a raw big-endian uint16.
func (w *Writer) PutUint16(v uint16) { w.putUint16(v) }

// PutBytes appends b verbatim, for callers writing an already-encoded
// payload (e.g. a udta bare-box value with its own length/language
// prefix) that has no dedicated Write* method.
func (w *Writer) PutBytes(b []byte) { w.putBytes(b) }

// Reset resets the writer position to 0.
func (w *Writer) Reset() {
	w.pos = 0
	w.depth = 0
}

// Fits reports whether n more bytes can be written without exhausting buf.
// Callers that need to honor the "no space" -> tail-append fallback of
// spec.md §4.7 check this before starting the top-level moov box.
func (w *Writer) Fits(n int) bool { return w.pos+n <= len(w.buf) }

// StartBox begins a new box. Write content, then call EndBox.
func (w *Writer) StartBox(t BoxType) {
	w.stack[w.depth] = writerFrame{offset: w.pos}
	w.depth++
	w.putUint32(0) // placeholder size
	w.putBytes(t[:])
}

// StartFullBox begins a new full box with version and flags.
func (w *Writer) StartFullBox(t BoxType, version uint8, flags uint32) {
	w.StartBox(t)
	vf := (uint32(version) << 24) | (flags & 0x00ffffff)
	w.putUint32(vf)
}

// EndBox finishes the current box by backpatching its size.
func (w *Writer) EndBox() {
	w.depth--
	f := w.stack[w.depth]
	size := uint32(w.pos - f.offset)
	be.PutUint32(w.buf[f.offset:], size)
}

// WriteFtyp writes a complete ftyp box.
func (w *Writer) WriteFtyp(brand [4]byte, brandVersion uint32, compat [][4]byte) {
	w.StartBox(TypeFtyp)
	w.putBytes(brand[:])
	w.putUint32(brandVersion)
	for _, c := range compat {
		w.putBytes(c[:])
	}
	w.EndBox()
}

// WriteFree writes a free (or skip) box of the given total size, filled
// with zeros, used both for initial layout padding and for converting an
// oversized prereserved moov region back to filler (spec.md §4.7).
func (w *Writer) WriteFree(t BoxType, totalSize int) {
	w.StartBox(t)
	if n := totalSize - 8; n > 0 {
		w.putZeros(n)
	}
	w.EndBox()
}

// WriteMvhd writes a complete mvhd box.
func (w *Writer) WriteMvhd(creation, modification uint64, timescale uint32, duration uint64, nextTrackId uint32) {
	if duration > uint32Max || creation > uint32Max || modification > uint32Max {
		w.StartFullBox(TypeMvhd, 1, 0)
		w.putUint64(creation)
		w.putUint64(modification)
		w.putUint32(timescale)
		w.putUint64(duration)
	} else {
		w.StartFullBox(TypeMvhd, 0, 0)
		w.putUint32(uint32(creation))
		w.putUint32(uint32(modification))
		w.putUint32(timescale)
		w.putUint32(uint32(duration))
	}
	w.putUint32(0x00010000) // rate 1.0
	w.putUint16(0x0100)     // volume 1.0
	w.putZeros(10)          // reserved
	writeIdentityMatrix(w)
	w.putZeros(24) // predefined
	w.putUint32(nextTrackId)
	w.EndBox()
}

// WriteTkhd writes a complete tkhd box.
func (w *Writer) WriteTkhd(creation, modification uint64, flags uint32, trackId uint32, duration uint64, width, height uint32) {
	if duration > uint32Max || creation > uint32Max || modification > uint32Max {
		w.StartFullBox(TypeTkhd, 1, flags)
		w.putUint64(creation)
		w.putUint64(modification)
		w.putUint32(trackId)
		w.putUint32(0) // reserved
		w.putUint64(duration)
	} else {
		w.StartFullBox(TypeTkhd, 0, flags)
		w.putUint32(uint32(creation))
		w.putUint32(uint32(modification))
		w.putUint32(trackId)
		w.putUint32(0) // reserved
		w.putUint32(uint32(duration))
	}
	w.putZeros(8)  // reserved
	w.putUint16(0) // layer
	w.putUint16(0) // alternate group
	w.putUint16(0) // volume
	w.putUint16(0) // reserved
	writeIdentityMatrix(w)
	w.putUint32(width)
	w.putUint32(height)
	w.EndBox()
}

// WriteMdhd writes a complete mdhd box.
func (w *Writer) WriteMdhd(creation, modification uint64, timescale uint32, duration uint64, language uint16) {
	if duration > uint32Max || creation > uint32Max || modification > uint32Max {
		w.StartFullBox(TypeMdhd, 1, 0)
		w.putUint64(creation)
		w.putUint64(modification)
		w.putUint32(timescale)
		w.putUint64(duration)
	} else {
		w.StartFullBox(TypeMdhd, 0, 0)
		w.putUint32(uint32(creation))
		w.putUint32(uint32(modification))
		w.putUint32(timescale)
		w.putUint32(uint32(duration))
	}
	w.putUint16(language)
	w.putUint16(0) // quality
	w.EndBox()
}

// WriteHdlr writes a complete hdlr box.
func (w *Writer) WriteHdlr(handlerType [4]byte, name string) {
	w.StartFullBox(TypeHdlr, 0, 0)
	w.putUint32(0) // predefined
	w.putBytes(handlerType[:])
	w.putZeros(12) // reserved
	w.putBytes([]byte(name))
	w.putUint8(0) // null terminator
	w.EndBox()
}

// WriteVmhd writes a complete vmhd box.
func (w *Writer) WriteVmhd() {
	w.StartFullBox(TypeVmhd, 0, 1)
	w.putUint16(0) // graphicsmode
	w.putZeros(6)  // opcolor
	w.EndBox()
}

// WriteSmhd writes a complete smhd box.
func (w *Writer) WriteSmhd() {
	w.StartFullBox(TypeSmhd, 0, 0)
	w.putUint16(0) // balance
	w.putUint16(0) // reserved
	w.EndBox()
}

// WriteNmhd writes a complete nmhd box (base media info, used for
// metadata/text/chapters tracks that have no specialized media header).
func (w *Writer) WriteNmhd() {
	w.StartFullBox(TypeNmhd, 0, 0)
	w.EndBox()
}

// WriteDref writes a dref box with a single self-referencing url entry.
func (w *Writer) WriteDref() {
	w.StartFullBox(TypeDref, 0, 0)
	w.putUint32(1) // entry count
	w.StartFullBox(BoxType{'u', 'r', 'l', ' '}, 0, 1)
	w.EndBox()
	w.EndBox()
}

// WriteStsz writes a complete stsz box from either a uniform sample size
// or an explicit per-sample size list. The sample count written is
// len(entries); the entries themselves are written only when sampleSize
// is 0.
func (w *Writer) WriteStsz(sampleSize uint32, entries []uint32) {
	w.StartFullBox(TypeStsz, 0, 0)
	w.putUint32(sampleSize)
	w.putUint32(uint32(len(entries)))
	if sampleSize == 0 {
		for _, e := range entries {
			w.putUint32(e)
		}
	}
	w.EndBox()
}

// WriteStco writes a complete stco box.
func (w *Writer) WriteStco(entries []uint32) {
	w.StartFullBox(TypeStco, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e)
	}
	w.EndBox()
}

// WriteCo64 writes a complete co64 box.
func (w *Writer) WriteCo64(entries []uint64) {
	w.StartFullBox(TypeCo64, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint64(e)
	}
	w.EndBox()
}

// WriteStss writes a complete stss box.
func (w *Writer) WriteStss(entries []uint32) {
	w.StartFullBox(TypeStss, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e)
	}
	w.EndBox()
}

// WriteStts writes a complete stts box.
func (w *Writer) WriteStts(entries []SttsEntry) {
	w.StartFullBox(TypeStts, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.Count)
		w.putUint32(e.Duration)
	}
	w.EndBox()
}

// WriteCtts writes a complete ctts box.
func (w *Writer) WriteCtts(entries []CttsEntry) {
	w.StartFullBox(TypeCtts, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.Count)
		w.putUint32(uint32(e.Offset))
	}
	w.EndBox()
}

// WriteStsc writes a complete stsc box.
func (w *Writer) WriteStsc(entries []StscEntry) {
	w.StartFullBox(TypeStsc, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		w.putUint32(e.FirstChunk)
		w.putUint32(e.SamplesPerChunk)
		w.putUint32(e.SampleDescriptionId)
	}
	w.EndBox()
}

// WriteElst writes a complete elst box (passthrough preservation only;
// this library never synthesizes edit lists itself, per spec.md Non-goals).
func (w *Writer) WriteElst(entries []ElstEntry) {
	v1 := false
	for _, e := range entries {
		if e.SegmentDuration > uint32Max || e.MediaTime > int64(int32(e.MediaTime)) {
			v1 = true
			break
		}
	}
	if v1 {
		w.StartFullBox(TypeElst, 1, 0)
	} else {
		w.StartFullBox(TypeElst, 0, 0)
	}
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		if v1 {
			w.putUint64(e.SegmentDuration)
			w.putUint64(uint64(e.MediaTime))
		} else {
			w.putUint32(uint32(e.SegmentDuration))
			w.putUint32(uint32(e.MediaTime))
		}
		w.putUint16(uint16(e.MediaRateInt))
		w.putUint16(uint16(e.MediaRateFrac))
	}
	w.EndBox()
}

// WriteVisualSampleEntry writes the 78-byte visual sample entry header.
// The caller must start the box (e.g. avc1/hvc1) and end it after writing
// children.
func (w *Writer) WriteVisualSampleEntry(dataRefIdx, width, height, frameCount, depth uint16, compressor string) {
	w.putZeros(6)
	w.putUint16(dataRefIdx)
	w.putZeros(16)
	w.putUint16(width)
	w.putUint16(height)
	w.putUint32(0x00480000) // hresolution 72 dpi
	w.putUint32(0x00480000) // vresolution 72 dpi
	w.putZeros(4)
	w.putUint16(frameCount)
	nameLen := min(len(compressor), 31)
	w.putUint8(byte(nameLen))
	w.putFixedString(compressor, 31)
	w.putUint16(depth)
	w.putUint16(0xffff) // predefined = -1
}

// WriteAudioSampleEntry writes the 28-byte audio sample entry header. The
// caller must start the box (e.g. mp4a) and end it after writing children.
func (w *Writer) WriteAudioSampleEntry(dataRefIdx, channelCount, sampleSize uint16, sampleRate uint32) {
	w.putZeros(6)
	w.putUint16(dataRefIdx)
	w.putZeros(8)
	w.putUint16(channelCount)
	w.putUint16(sampleSize)
	w.putZeros(4)
	w.putUint32(sampleRate)
}

// WriteAvcC writes a complete avcC box from a single SPS/PPS pair.
func (w *Writer) WriteAvcC(profile, profileCompat, level byte, sps, pps []byte) {
	w.StartBox(TypeAvcC)
	w.putUint8(1) // configurationVersion
	w.putUint8(profile)
	w.putUint8(profileCompat)
	w.putUint8(level)
	w.putUint8(0xfc | 3) // reserved(6)=111111, lengthSizeMinusOne=3
	w.putUint8(0xe0 | 1) // reserved(3)=111, numSPS=1
	w.putUint16(uint16(len(sps)))
	w.putBytes(sps)
	w.putUint8(1) // numPPS
	w.putUint16(uint16(len(pps)))
	w.putBytes(pps)
	w.EndBox()
}

// WriteHvcC writes a complete hvcC box from a single VPS/SPS/PPS triple.
func (w *Writer) WriteHvcC(info HVCCInfo, vps, sps, pps []byte) {
	w.StartBox(TypeHvcC)
	w.putUint8(1) // configurationVersion
	b1 := (info.GeneralProfileSpace << 6) | info.GeneralProfileIdc
	if info.GeneralTierFlag {
		b1 |= 0x20
	}
	w.putUint8(b1)
	w.putUint32(info.GeneralProfileCompat)
	w.putBytes(info.GeneralConstraint[:])
	w.putUint8(info.GeneralLevelIdc)
	w.putUint16(0xf000)                      // reserved(4)=1111, min_spatial_segmentation_idc=0
	w.putUint8(0xfc)                         // reserved(6)=111111, parallelismType=0
	w.putUint8(0xfc | info.ChromaFormat)     // reserved(6)=111111, chromaFormat
	w.putUint8(0xf8 | info.BitDepthLumaMinus8)
	w.putUint8(0xf8 | info.BitDepthChromaMinus8)
	w.putUint16(0) // avgFrameRate
	w.putUint8(0x0f)    // constantFrameRate(2)=0, numTemporalLayers(3)=1, temporalIdNested(1)=1, lengthSizeMinusOne(2)=3
	w.putUint8(3)       // numArrays
	writeHvcCArray(w, 32, vps) // VPS_NUT
	writeHvcCArray(w, 33, sps) // SPS_NUT
	writeHvcCArray(w, 34, pps) // PPS_NUT
	w.EndBox()
}

func writeHvcCArray(w *Writer, nalType byte, nal []byte) {
	w.putUint8(nalType & 0x3f) // array_completeness=0, reserved=0
	w.putUint16(1)             // numNalus
	w.putUint16(uint16(len(nal)))
	w.putBytes(nal)
}

// WriteEsds writes a complete esds box.
func (w *Writer) WriteEsds(esID uint16, cfg DecoderConfig) {
	w.StartFullBox(TypeEsds, 0, 0)
	w.putBytes(EncodeEsds(esID, cfg))
	w.EndBox()
}

// WriteKeys writes a complete keys box (the moov/meta reverse-DNS key
// table; ilst entries reference keys by 1-based index).
func (w *Writer) WriteKeys(keys []string) {
	w.StartFullBox(TypeKeys, 0, 0)
	w.putUint32(uint32(len(keys)))
	for _, k := range keys {
		w.StartBox(BoxType{'m', 'd', 't', 'a'})
		w.putBytes([]byte(k))
		w.EndBox()
	}
	w.EndBox()
}

// WriteIlstItem writes one ilst child box (either a numeric key index for
// moov/meta entries, or a well-known 4-CC tag for udta/meta entries)
// wrapping a single data box holding typeIndicator-tagged content.
func (w *Writer) WriteIlstItem(t BoxType, typeIndicator uint32, content []byte) {
	w.StartBox(t)
	w.StartFullBox(TypeData, 0, typeIndicator)
	w.putUint32(0) // locale/reserved
	w.putBytes(content)
	w.EndBox()
	w.EndBox()
}

func writeIdentityMatrix(w *Writer) {
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x00010000)
	w.putZeros(4)
	w.putZeros(4)
	w.putZeros(4)
	w.putUint32(0x40000000)
}
