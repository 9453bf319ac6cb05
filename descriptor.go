package isobox

import "github.com/tetsuo/isobox/internal/descriptor"

// DecoderConfig holds the fields of an MPEG-4 DecoderConfigDescriptor
// plus the raw bytes of its nested DecoderSpecificInfo, e.g. the
// AudioSpecificConfig payload for AAC (spec.md §4.3).
type DecoderConfig = descriptor.Config

// ReadEsds parses the MPEG-4 descriptor chain in esds box data: an
// ES_Descriptor wrapping a DecoderConfigDescriptor wrapping a
// DecoderSpecificInfo. Returns ok=false if the chain is truncated or the
// expected tags are missing.
func ReadEsds(data []byte) (DecoderConfig, bool) {
	return descriptor.ReadEsds(data)
}

// EncodeEsds builds the esds box payload for cfg using the minimal
// number of length-continuation bytes.
func EncodeEsds(esID uint16, cfg DecoderConfig) []byte {
	return descriptor.EncodeEsds(esID, cfg)
}
