// Package isobox implements encoding and decoding of ISO Base Media File
// Format (ISO/IEC 14496-12) boxes, plus the AVC (14496-15), HEVC and AAC
// (14496-14) sample-entry derivatives and the Apple QuickTime metadata
// extensions needed to read and write a non-fragmented single-movie MP4.
package isobox

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// Known box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'}
	TypeTrak = BoxType{'t', 'r', 'a', 'k'}
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'}
	TypeTref = BoxType{'t', 'r', 'e', 'f'}
	TypeEdts = BoxType{'e', 'd', 't', 's'}
	TypeElst = BoxType{'e', 'l', 's', 't'}
	TypeMdia = BoxType{'m', 'd', 'i', 'a'}
	TypeMdhd = BoxType{'m', 'd', 'h', 'd'}
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'}
	TypeMinf = BoxType{'m', 'i', 'n', 'f'}
	TypeVmhd = BoxType{'v', 'm', 'h', 'd'}
	TypeSmhd = BoxType{'s', 'm', 'h', 'd'}
	TypeNmhd = BoxType{'n', 'm', 'h', 'd'}
	TypeDinf = BoxType{'d', 'i', 'n', 'f'}
	TypeDref = BoxType{'d', 'r', 'e', 'f'}
	TypeStbl = BoxType{'s', 't', 'b', 'l'}
	TypeStsd = BoxType{'s', 't', 's', 'd'}
	TypeStts = BoxType{'s', 't', 't', 's'}
	TypeCtts = BoxType{'c', 't', 't', 's'}
	TypeStsc = BoxType{'s', 't', 's', 'c'}
	TypeStsz = BoxType{'s', 't', 's', 'z'}
	TypeStco = BoxType{'s', 't', 'c', 'o'}
	TypeCo64 = BoxType{'c', 'o', '6', '4'}
	TypeStss = BoxType{'s', 't', 's', 's'}
	// Metadata boxes.
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeUdta = BoxType{'u', 'd', 't', 'a'}
	TypeKeys = BoxType{'k', 'e', 'y', 's'}
	TypeIlst = BoxType{'i', 'l', 's', 't'}
	TypeData = BoxType{'d', 'a', 't', 'a'}
	// Data boxes.
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
	TypeWide = BoxType{'w', 'i', 'd', 'e'}
	// Sample entry boxes.
	TypeAvc1 = BoxType{'a', 'v', 'c', '1'}
	TypeAvcC = BoxType{'a', 'v', 'c', 'C'}
	TypeHvc1 = BoxType{'h', 'v', 'c', '1'}
	TypeHvcC = BoxType{'h', 'v', 'c', 'C'}
	TypeMp4a = BoxType{'m', 'p', '4', 'a'}
	TypeEsds = BoxType{'e', 's', 'd', 's'}
	TypeMett = BoxType{'m', 'e', 't', 't'}
	// uuid extended-type box.
	TypeUUID = BoxType{'u', 'u', 'i', 'd'}
)

// Well-known QuickTime udta/ilst 4-CC metadata tags. The high byte of each
// is the copyright-sign 0xA9 ("©") per the QuickTime metadata convention.
var (
	TagArtist    = BoxType{0xA9, 'A', 'R', 'T'}
	TagTitle     = BoxType{0xA9, 'n', 'a', 'm'}
	TagComment   = BoxType{0xA9, 'c', 'm', 't'}
	TagCopyright = BoxType{0xA9, 'c', 'p', 'y'}
	TagDate      = BoxType{0xA9, 'd', 'a', 'y'}
	TagLocation  = BoxType{0xA9, 'x', 'y', 'z'}
	TagMake      = BoxType{0xA9, 'm', 'a', 'k'}
	TagModel     = BoxType{0xA9, 'm', 'o', 'd'}
	TagSoftware  = BoxType{0xA9, 's', 'w', 'r'}
)

// IsFullBox returns true if the box type has version and flags fields.
func IsFullBox(t BoxType) bool {
	switch t {
	case TypeMvhd, TypeTkhd, TypeMdhd, TypeHdlr,
		TypeVmhd, TypeSmhd, TypeDref, TypeStsd,
		TypeStts, TypeCtts, TypeStsc, TypeStsz,
		TypeStco, TypeCo64, TypeStss, TypeElst,
		TypeMeta, TypeEsds, TypeKeys, TypeData:
		return true
	}
	return false
}

// IsContainerBox returns true if the box type is a container that holds
// child boxes under the recursive-descent reader.
func IsContainerBox(t BoxType) bool {
	switch t {
	case TypeMoov, TypeTrak, TypeEdts, TypeMdia,
		TypeMinf, TypeDinf, TypeStbl, TypeUdta,
		TypeMeta, TypeIlst, TypeTref:
		return true
	}
	return false
}

// IsMetadataItem reports whether t is a well-known udta/ilst metadata tag.
func IsMetadataItem(t BoxType) bool {
	switch t {
	case TagArtist, TagTitle, TagComment, TagCopyright,
		TagDate, TagLocation, TagMake, TagModel, TagSoftware:
		return true
	}
	return false
}
