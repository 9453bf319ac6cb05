// Package descriptor decodes and encodes the MPEG-4 descriptor chain
// (ISO/IEC 14496-1 §8.3) used inside an esds box: an ES_Descriptor (tag
// 0x03) wrapping a DecoderConfigDescriptor (tag 0x04) wrapping a
// DecoderSpecificInfo (tag 0x05).
package descriptor

import "encoding/binary"

var be = binary.BigEndian

// Config holds the fields of a DecoderConfigDescriptor plus the raw
// bytes of its nested DecoderSpecificInfo, e.g. the AudioSpecificConfig
// payload for AAC.
type Config struct {
	ObjectTypeIndication uint8
	StreamType           uint8
	BufferSizeDB         uint32
	MaxBitrate           uint32
	AvgBitrate           uint32
	// SpecificInfo is the raw DecoderSpecificInfo payload, verbatim. For
	// AAC this is the two-or-more-byte AudioSpecificConfig.
	SpecificInfo []byte
}

// ReadEsds parses the descriptor chain in esds box data. Returns
// ok=false if the chain is truncated or the expected tags are missing.
func ReadEsds(data []byte) (cfg Config, ok bool) {
	ptr, end := 0, len(data)
	if ptr >= end || data[ptr] != 0x03 {
		return Config{}, false
	}
	ptr++
	ptr = skipLength(data, ptr, end)
	if ptr < 0 || ptr+3 > end {
		return Config{}, false
	}

	flags := data[ptr+2]
	ptr += 3

	if flags&0x80 != 0 { // streamDependenceFlag
		ptr += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if ptr >= end {
			return Config{}, false
		}
		urlLen := int(data[ptr])
		ptr += 1 + urlLen
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		ptr += 2
	}
	if ptr >= end || data[ptr] != 0x04 {
		return Config{}, false
	}
	ptr++
	ptr = skipLength(data, ptr, end)
	if ptr < 0 || ptr+13 > end {
		return Config{}, false
	}

	cfg.ObjectTypeIndication = data[ptr]
	cfg.StreamType = data[ptr+1] >> 2
	cfg.BufferSizeDB = uint32(data[ptr+2])<<16 | uint32(data[ptr+3])<<8 | uint32(data[ptr+4])
	cfg.MaxBitrate = be.Uint32(data[ptr+5 : ptr+9])
	cfg.AvgBitrate = be.Uint32(data[ptr+9 : ptr+13])
	ptr += 13

	if ptr >= end || data[ptr] != 0x05 {
		return cfg, cfg.ObjectTypeIndication != 0
	}
	ptr++
	specStart := skipLength(data, ptr, end)
	if specStart < 0 {
		return cfg, cfg.ObjectTypeIndication != 0
	}
	specLen := length(data, ptr, end)
	if specStart+specLen > end {
		specLen = end - specStart
	}
	cfg.SpecificInfo = data[specStart : specStart+specLen]
	return cfg, true
}

// skipLength skips the variable-length descriptor length field (1-4
// bytes, top-bit continuation). Returns the new position, or -1 on error.
func skipLength(data []byte, ptr, end int) int {
	for ptr < end {
		b := data[ptr]
		ptr++
		if b&0x80 == 0 {
			return ptr
		}
	}
	return -1
}

// length decodes the variable-length descriptor length field starting at
// ptr without advancing past it; ptr must already point past the 1-byte tag.
func length(data []byte, ptr, end int) int {
	n := 0
	for ptr < end {
		b := data[ptr]
		ptr++
		n = (n << 7) | int(b&0x7f)
		if b&0x80 == 0 {
			return n
		}
	}
	return 0
}

// putLength appends the minimal-length variable-length encoding (1-4
// bytes, top-bit continuation) of n.
func putLength(buf []byte, n int) []byte {
	if n < 0x80 {
		return append(buf, byte(n))
	}
	var tmp [4]byte
	i := 4
	for n > 0 {
		i--
		tmp[i] = byte(n & 0x7f)
		n >>= 7
	}
	for j := i; j < 3; j++ {
		tmp[j] |= 0x80
	}
	return append(buf, tmp[i:]...)
}

// EncodeEsds builds the esds box payload (ES_Descriptor wrapping a
// DecoderConfigDescriptor and, when cfg.SpecificInfo is non-empty, a
// DecoderSpecificInfo) using the minimal number of length-continuation
// bytes.
func EncodeEsds(esID uint16, cfg Config) []byte {
	var dsi []byte
	if len(cfg.SpecificInfo) > 0 {
		dsi = append(dsi, 0x05)
		dsi = putLength(dsi, len(cfg.SpecificInfo))
		dsi = append(dsi, cfg.SpecificInfo...)
	}

	dcd := make([]byte, 0, 13+len(dsi))
	dcd = append(dcd, cfg.ObjectTypeIndication)
	dcd = append(dcd, cfg.StreamType<<2|0x01) // upStream=0, reserved=1
	dcd = append(dcd, byte(cfg.BufferSizeDB>>16), byte(cfg.BufferSizeDB>>8), byte(cfg.BufferSizeDB))
	var tmp [4]byte
	be.PutUint32(tmp[:], cfg.MaxBitrate)
	dcd = append(dcd, tmp[:]...)
	be.PutUint32(tmp[:], cfg.AvgBitrate)
	dcd = append(dcd, tmp[:]...)
	dcd = append(dcd, dsi...)

	body := make([]byte, 0, 4+len(dcd))
	body = append(body, 0x04)
	body = putLength(body, len(dcd))
	body = append(body, dcd...)

	var esIDBuf [2]byte
	be.PutUint16(esIDBuf[:], esID)
	es := make([]byte, 0, 3+len(body))
	es = append(es, esIDBuf[:]...)
	es = append(es, 0x00) // flags: no dependency, no URL, no OCR
	es = append(es, body...)

	out := make([]byte, 0, 4+len(es))
	out = append(out, 0x03)
	out = putLength(out, len(es))
	out = append(out, es...)
	return out
}
