package isobox

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// StszIter iterates over sample sizes in an stsz box.
type StszIter struct {
	buf        []byte
	sampleSize uint32
	count      uint32
	index      uint32
}

// NewStszIter creates an iterator from stsz box data.
func NewStszIter(data []byte) StszIter {
	if len(data) < 8 {
		return StszIter{}
	}
	return StszIter{
		buf:        data,
		sampleSize: be.Uint32(data[0:4]),
		count:      be.Uint32(data[4:8]),
	}
}

// Count returns the total number of samples.
func (it *StszIter) Count() uint32 { return it.count }

// Next returns the next sample size. Returns (0, false) when done.
func (it *StszIter) Next() (uint32, bool) {
	if it.index >= it.count {
		return 0, false
	}
	var size uint32
	if it.sampleSize != 0 {
		size = it.sampleSize
	} else {
		offset := 8 + int(it.index)*4
		if offset+4 > len(it.buf) {
			return 0, false
		}
		size = be.Uint32(it.buf[offset:])
	}
	it.index++
	return size, true
}

// Co64Iter iterates over uint64 chunk offsets in a co64 box.
type Co64Iter struct {
	buf   []byte
	count uint32
	index uint32
}

// NewCo64Iter creates an iterator from co64 box data.
func NewCo64Iter(data []byte) Co64Iter {
	if len(data) < 4 {
		return Co64Iter{}
	}
	return Co64Iter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

// Count returns the total number of entries.
func (it *Co64Iter) Count() uint32 { return it.count }

// Next returns the next chunk offset. Returns (0, false) when done.
func (it *Co64Iter) Next() (uint64, bool) {
	if it.index >= it.count {
		return 0, false
	}
	offset := 4 + int(it.index)*8
	if offset+8 > len(it.buf) {
		return 0, false
	}
	v := be.Uint64(it.buf[offset:])
	it.index++
	return v, true
}

// SttsEntry is a time-to-sample run.
type SttsEntry struct {
	Count    uint32
	Duration uint32
}

// SttsIter iterates over stts entries.
type SttsIter struct {
	buf   []byte
	count uint32
	index uint32
}

// NewSttsIter creates an iterator from stts box data.
func NewSttsIter(data []byte) SttsIter {
	if len(data) < 4 {
		return SttsIter{}
	}
	return SttsIter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

// Count returns the total number of entries.
func (it *SttsIter) Count() uint32 { return it.count }

// Next returns the next entry. Returns false when done.
func (it *SttsIter) Next() (SttsEntry, bool) {
	if it.index >= it.count {
		return SttsEntry{}, false
	}
	offset := 4 + int(it.index)*8
	if offset+8 > len(it.buf) {
		return SttsEntry{}, false
	}
	e := SttsEntry{
		Count:    be.Uint32(it.buf[offset:]),
		Duration: be.Uint32(it.buf[offset+4:]),
	}
	it.index++
	return e, true
}

// CttsEntry is a composition-offset run.
type CttsEntry struct {
	Count  uint32
	Offset int32
}

// CttsIter iterates over ctts entries.
type CttsIter struct {
	buf     []byte
	count   uint32
	index   uint32
	version uint8
}

// NewCttsIter creates an iterator from ctts box data.
// version should be 0 or 1 from the ctts box version field.
func NewCttsIter(data []byte, version uint8) CttsIter {
	if len(data) < 4 {
		return CttsIter{}
	}
	return CttsIter{
		buf:     data,
		count:   be.Uint32(data[0:4]),
		version: version,
	}
}

// Count returns the total number of entries.
func (it *CttsIter) Count() uint32 { return it.count }

// Next returns the next entry. Returns false when done.
func (it *CttsIter) Next() (CttsEntry, bool) {
	if it.index >= it.count {
		return CttsEntry{}, false
	}
	offset := 4 + int(it.index)*8
	if offset+8 > len(it.buf) {
		return CttsEntry{}, false
	}
	e := CttsEntry{
		Count:  be.Uint32(it.buf[offset:]),
		Offset: int32(be.Uint32(it.buf[offset+4:])),
	}
	it.index++
	return e, true
}

// StscEntry is a sample-to-chunk run.
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionId uint32
}

// StscIter iterates over stsc entries.
type StscIter struct {
	buf   []byte
	count uint32
	index uint32
}

// NewStscIter creates an iterator from stsc box data.
func NewStscIter(data []byte) StscIter {
	if len(data) < 4 {
		return StscIter{}
	}
	return StscIter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

// Count returns the total number of entries.
func (it *StscIter) Count() uint32 { return it.count }

// Next returns the next entry. Returns false when done.
func (it *StscIter) Next() (StscEntry, bool) {
	if it.index >= it.count {
		return StscEntry{}, false
	}
	offset := 4 + int(it.index)*12
	if offset+12 > len(it.buf) {
		return StscEntry{}, false
	}
	e := StscEntry{
		FirstChunk:          be.Uint32(it.buf[offset:]),
		SamplesPerChunk:     be.Uint32(it.buf[offset+4:]),
		SampleDescriptionId: be.Uint32(it.buf[offset+8:]),
	}
	it.index++
	return e, true
}

// ElstEntry is an edit-list entry, preserved verbatim for passthrough.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// ElstIter iterates over elst entries.
type ElstIter struct {
	buf     []byte
	count   uint32
	index   uint32
	version uint8
}

// NewElstIter creates an iterator from elst box data with the given version.
func NewElstIter(data []byte, version uint8) ElstIter {
	if len(data) < 4 {
		return ElstIter{}
	}
	return ElstIter{
		buf:     data,
		count:   be.Uint32(data[0:4]),
		version: version,
	}
}

// Count returns the total number of entries.
func (it *ElstIter) Count() uint32 { return it.count }

// Next returns the next entry. Returns false when done.
func (it *ElstIter) Next() (ElstEntry, bool) {
	if it.index >= it.count {
		return ElstEntry{}, false
	}
	var e ElstEntry
	if it.version == 1 {
		stride := 20
		offset := 4 + int(it.index)*stride
		if offset+stride > len(it.buf) {
			return ElstEntry{}, false
		}
		e.SegmentDuration = be.Uint64(it.buf[offset:])
		e.MediaTime = int64(be.Uint64(it.buf[offset+8:]))
		e.MediaRateInt = int16(be.Uint16(it.buf[offset+16:]))
		e.MediaRateFrac = int16(be.Uint16(it.buf[offset+18:]))
	} else {
		stride := 12
		offset := 4 + int(it.index)*stride
		if offset+stride > len(it.buf) {
			return ElstEntry{}, false
		}
		e.SegmentDuration = uint64(be.Uint32(it.buf[offset:]))
		e.MediaTime = int64(int32(be.Uint32(it.buf[offset+4:])))
		e.MediaRateInt = int16(be.Uint16(it.buf[offset+8:]))
		e.MediaRateFrac = int16(be.Uint16(it.buf[offset+10:]))
	}
	it.index++
	return e, true
}

// Uint32Iter iterates over uint32 entries (stco, stss).
type Uint32Iter struct {
	buf   []byte
	count uint32
	index uint32
}

// NewUint32Iter creates an iterator from box data containing a count + uint32 entries.
func NewUint32Iter(data []byte) Uint32Iter {
	if len(data) < 4 {
		return Uint32Iter{}
	}
	return Uint32Iter{
		buf:   data,
		count: be.Uint32(data[0:4]),
	}
}

// Count returns the total number of entries.
func (it *Uint32Iter) Count() uint32 { return it.count }

// Next returns the next entry. Returns (0, false) when done.
func (it *Uint32Iter) Next() (uint32, bool) {
	if it.index >= it.count {
		return 0, false
	}
	offset := 4 + int(it.index)*4
	if offset+4 > len(it.buf) {
		return 0, false
	}
	v := be.Uint32(it.buf[offset:])
	it.index++
	return v, true
}

// FtypInfo holds parsed fields from an ftyp box.
type FtypInfo struct {
	MajorBrand   [4]byte
	MinorVersion uint32
	Compatible   [][4]byte
}

// ReadFtyp parses an ftyp box. The caller must check the major brand is
// the first box in the file per the first-box rule (spec.md §4.3).
func ReadFtyp(data []byte) FtypInfo {
	f := FtypInfo{
		MinorVersion: be.Uint32(data[4:8]),
	}
	copy(f.MajorBrand[:], data[0:4])
	for i := 8; i+4 <= len(data); i += 4 {
		var b [4]byte
		copy(b[:], data[i:i+4])
		f.Compatible = append(f.Compatible, b)
	}
	return f
}

// VisualSampleEntry holds parsed fields from a visual sample entry (e.g. avc1/hvc1).
type VisualSampleEntry struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	HResolution        uint32
	VResolution        uint32
	FrameCount         uint16
	CompressorName     string
	Depth              uint16
	ChildOffset        int // byte offset within data where child boxes begin
}

// ReadVisualSampleEntry parses the fixed 78-byte visual sample entry header.
// Child boxes (e.g. avcC/hvcC) start at ChildOffset within the data.
func ReadVisualSampleEntry(data []byte) VisualSampleEntry {
	nameLen := min(int(data[42]), 31)
	return VisualSampleEntry{
		DataReferenceIndex: be.Uint16(data[6:8]),
		Width:              be.Uint16(data[24:26]),
		Height:             be.Uint16(data[26:28]),
		HResolution:        be.Uint32(data[28:32]),
		VResolution:        be.Uint32(data[32:36]),
		FrameCount:         be.Uint16(data[40:42]),
		CompressorName:     string(data[43 : 43+nameLen]),
		Depth:              be.Uint16(data[74:76]),
		ChildOffset:        78,
	}
}

// AudioSampleEntry holds parsed fields from an audio sample entry (e.g. mp4a).
type AudioSampleEntry struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32 // 16.16 fixed point
	ChildOffset        int    // byte offset within data where child boxes begin
}

// ReadAudioSampleEntry parses the fixed 28-byte audio sample entry header.
// Child boxes (e.g. esds) start at ChildOffset within the data.
func ReadAudioSampleEntry(data []byte) AudioSampleEntry {
	return AudioSampleEntry{
		DataReferenceIndex: be.Uint16(data[6:8]),
		ChannelCount:       be.Uint16(data[16:18]),
		SampleSize:         be.Uint16(data[18:20]),
		SampleRate:         be.Uint32(data[24:28]),
		ChildOffset:        28,
	}
}

// ReadAvcC extracts the first SPS and PPS from avcC box data, ignoring any
// additional parameter sets (spec.md §4.3).
func ReadAvcC(data []byte) (sps, pps []byte, ok bool) {
	if len(data) < 6 {
		return nil, nil, false
	}
	ptr := 5 // configurationVersion, profile, compat, level, lengthSizeMinusOne
	numSPS := int(data[ptr] & 0x1f)
	ptr++
	for i := 0; i < numSPS; i++ {
		if ptr+2 > len(data) {
			return nil, nil, false
		}
		l := int(be.Uint16(data[ptr:]))
		ptr += 2
		if ptr+l > len(data) {
			return nil, nil, false
		}
		if i == 0 {
			sps = data[ptr : ptr+l]
		}
		ptr += l
	}
	if ptr >= len(data) {
		return sps, nil, sps != nil
	}
	numPPS := int(data[ptr])
	ptr++
	for i := 0; i < numPPS; i++ {
		if ptr+2 > len(data) {
			break
		}
		l := int(be.Uint16(data[ptr:]))
		ptr += 2
		if ptr+l > len(data) {
			break
		}
		if i == 0 {
			pps = data[ptr : ptr+l]
		}
		ptr += l
	}
	return sps, pps, sps != nil && pps != nil
}

// HVCCInfo holds the fixed-layout fields of an hvcC box preceding its
// array of NAL-unit groups.
type HVCCInfo struct {
	GeneralProfileSpace  uint8
	GeneralTierFlag      bool
	GeneralProfileIdc    uint8
	GeneralProfileCompat uint32
	GeneralConstraint    [6]byte
	GeneralLevelIdc      uint8
	ChromaFormat         uint8
	BitDepthLumaMinus8   uint8
	BitDepthChromaMinus8 uint8
}

// ReadHvcC extracts the first VPS, SPS and PPS NAL unit across the hvcC
// array of NAL-unit groups (spec.md §4.3), plus the fixed hvcc_info header.
func ReadHvcC(data []byte) (info HVCCInfo, vps, sps, pps []byte, ok bool) {
	if len(data) < 23 {
		return HVCCInfo{}, nil, nil, nil, false
	}
	info.GeneralProfileSpace = data[1] >> 6
	info.GeneralTierFlag = data[1]&0x20 != 0
	info.GeneralProfileIdc = data[1] & 0x1f
	info.GeneralProfileCompat = be.Uint32(data[2:6])
	copy(info.GeneralConstraint[:], data[6:12])
	info.GeneralLevelIdc = data[12]
	info.ChromaFormat = data[16] & 0x3
	info.BitDepthLumaMinus8 = data[17] & 0x7
	info.BitDepthChromaMinus8 = data[18] & 0x7

	ptr := 22
	if ptr >= len(data) {
		return info, nil, nil, nil, false
	}
	numArrays := int(data[ptr])
	ptr++
	for i := 0; i < numArrays; i++ {
		if ptr+3 > len(data) {
			break
		}
		nalType := data[ptr] & 0x3f
		numNalus := int(be.Uint16(data[ptr+1:]))
		ptr += 3
		for j := 0; j < numNalus; j++ {
			if ptr+2 > len(data) {
				break
			}
			l := int(be.Uint16(data[ptr:]))
			ptr += 2
			if ptr+l > len(data) {
				break
			}
			if j == 0 {
				switch nalType {
				case 32: // VPS_NUT
					if vps == nil {
						vps = data[ptr : ptr+l]
					}
				case 33: // SPS_NUT
					if sps == nil {
						sps = data[ptr : ptr+l]
					}
				case 34: // PPS_NUT
					if pps == nil {
						pps = data[ptr : ptr+l]
					}
				}
			}
			ptr += l
		}
	}
	return info, vps, sps, pps, vps != nil && sps != nil && pps != nil
}
