package meta

// Cover describes a cover-art image on the demux side: a byte range
// within the file rather than the decoded bytes, so opening a file
// doesn't pull image data into memory until a caller asks for it.
// demux.Open sets Offset relative to the start of the moov bytes it was
// given, so the moov box's own file offset is added to locate the image
// in the file.
type Cover struct {
	Offset int64
	Size   uint32
	Kind   ValueKind
}

// CoverBytes holds eager cover-art bytes on the mux side, since the
// caller handed the bytes directly to SetFileCover rather than them
// living somewhere in an already-open file.
type CoverBytes struct {
	Kind  ValueKind
	Bytes []byte
}
