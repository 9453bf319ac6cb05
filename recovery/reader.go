package recovery

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/mux"
	"github.com/tetsuo/isobox/track"
)

var be = binary.BigEndian

var (
	recTrak = isobox.BoxType{'t', 'r', 'a', 'k'}
	recStsd = isobox.BoxType{'s', 't', 's', 'd'}
	recStts = isobox.BoxType{'s', 't', 't', 's'}
	recStsc = isobox.BoxType{'s', 't', 's', 'c'}
	recStsz = isobox.BoxType{'s', 't', 's', 'z'}
	recStco = isobox.BoxType{'s', 't', 'c', 'o'}
	recCo64 = isobox.BoxType{'c', 'o', '6', '4'}
	recStss = isobox.BoxType{'s', 't', 's', 's'}
	recMeta = isobox.BoxType{'m', 'e', 't', 'a'}
	recCovr = isobox.BoxType{'c', 'o', 'v', 'r'}
)

// pendingBatch accumulates one track's delta run records (always
// written stts, [stss], stsc, stsz, stco/co64 in that order by
// mux's journal writer) until the terminal stco/co64 record closes it.
type pendingBatch struct {
	stts []track.STTSRun
	stss []uint32
	stsc []track.STSCRun
	stsz track.STSZForm
}

// Recover rebuilds a mux.MuxState from the link file at linkPath: it
// parses the link file, optionally verifies the storage UUID against
// expectedUUID, opens the media file, replays every complete record
// from the tables file, truncates away any sample rows whose bytes
// never made it to disk, and returns the muxer ready for a final Close.
// A nil expectedUUID skips verification even if the link file carries
// one.
func Recover(linkPath string, expectedUUID *[16]byte) (*mux.MuxState, error) {
	lf, err := ParseLinkFile(linkPath)
	if err != nil {
		return nil, err
	}

	if expectedUUID != nil && lf.UUID != nil && *lf.UUID != *expectedUUID {
		return nil, isobox.NewError(isobox.KindProtocolError, "recovery.Recover", nil)
	}

	mediaFile, err := os.OpenFile(lf.MediaPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, isobox.NewError(isobox.KindIoError, "recovery.Recover", err)
	}

	ms := mux.NewForRecovery(mediaFile, mux.Options{})

	if err := replayTables(ms, lf.TablesPath); err != nil {
		mediaFile.Close()
		return nil, err
	}

	if err := truncateToDisk(ms, mediaFile); err != nil {
		mediaFile.Close()
		return nil, err
	}

	return ms, nil
}

func replayTables(ms *mux.MuxState, tablesPath string) error {
	f, err := os.Open(tablesPath)
	if err != nil {
		return isobox.NewError(isobox.KindIoError, "recovery.replayTables", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	tracks := map[uint32]*track.Track{}
	batches := map[uint32]*pendingBatch{}

	for {
		handle, boxType, count, err := readHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Torn trailing record: stop here rather than erroring.
			break
		}

		switch boxType {
		case recTrak:
			t, rerr := readTrakRecord(r, handle)
			if rerr != nil {
				return nil
			}
			tracks[handle] = t
		case recStsd:
			codec, rerr := readStsdRecord(r)
			if rerr != nil {
				return nil
			}
			if t, ok := tracks[handle]; ok {
				ms.ReplayTrack(t.ID, t.Kind, flagsOf(t), t.Timescale, t.DurationTicks, t.Name, t.References, codec)
			}
		case recStts:
			runs, rerr := readSTTS(r, count)
			if rerr != nil {
				return nil
			}
			batch(batches, handle).stts = runs
		case recStss:
			entries, rerr := readSTSS(r, count)
			if rerr != nil {
				return nil
			}
			batch(batches, handle).stss = entries
		case recStsc:
			runs, rerr := readSTSC(r, count)
			if rerr != nil {
				return nil
			}
			batch(batches, handle).stsc = runs
		case recStsz:
			form, rerr := readSTSZ(r, count)
			if rerr != nil {
				return nil
			}
			batch(batches, handle).stsz = form
		case recStco, recCo64:
			offsets, rerr := readOffsets(r, boxType, count)
			if rerr != nil {
				return nil
			}
			b := batch(batches, handle)
			c := track.Compressed{
				STTS:         b.stts,
				STSC:         b.stsc,
				ChunkOffsets: offsets,
				STSZ:         b.stsz,
				STSS:         b.stss,
			}
			delete(batches, handle)
			if len(offsets) == 0 {
				continue
			}
			tbl, xerr := track.Expand(c)
			if xerr != nil {
				return nil
			}
			if t, ok := tracks[handle]; ok {
				tbl2Replay(ms, t, tbl)
			}
		case recMeta:
			scope, key, v, rerr := readMetaRecord(r)
			if rerr != nil {
				return nil
			}
			ms.ReplayMeta(scope, key, v)
		case recCovr:
			kind, data, rerr := readCoverRecord(r)
			if rerr != nil {
				return nil
			}
			ms.ReplayCover(kind, data)
		default:
			return isobox.NewError(isobox.KindProtocolError, "recovery.replayTables", nil)
		}
	}

	return nil
}

func flagsOf(t *track.Track) uint32 {
	var f uint32
	if t.Enabled {
		f |= 0x1
	}
	if t.InMovie {
		f |= 0x2
	}
	if t.InPreview {
		f |= 0x4
	}
	return f
}

func tbl2Replay(ms *mux.MuxState, t *track.Track, tbl track.Table) {
	var hasComp bool
	var comp []int64
	if tbl.CompositionOffsets != nil {
		hasComp = true
		comp = tbl.CompositionOffsets
	}
	ms.ReplaySamples(t, tbl.Sizes, tbl.DTS, tbl.Offsets, comp, hasComp, tbl.SyncIndices)
}

func batch(m map[uint32]*pendingBatch, handle uint32) *pendingBatch {
	b, ok := m[handle]
	if !ok {
		b = &pendingBatch{}
		m[handle] = b
	}
	return b
}

func readHeader(r *bufio.Reader) (handle uint32, boxType isobox.BoxType, count uint32, err error) {
	var hdr [12]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, isobox.BoxType{}, 0, err
	}
	handle = be.Uint32(hdr[0:4])
	copy(boxType[:], hdr[4:8])
	count = be.Uint32(hdr[8:12])
	return handle, boxType, count, nil
}

func readU32(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return be.Uint32(b[:]), nil
}

func readU64(r *bufio.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return be.Uint64(b[:]), nil
}

func readN(r *bufio.Reader, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readLenPrefixed(r *bufio.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	return readN(r, n)
}

func readTrakRecord(r *bufio.Reader, id uint32) (*track.Track, error) {
	kind, err := readU32(r)
	if err != nil {
		return nil, err
	}
	flags, err := readU32(r)
	if err != nil {
		return nil, err
	}
	timescale, err := readU32(r)
	if err != nil {
		return nil, err
	}
	duration, err := readU64(r)
	if err != nil {
		return nil, err
	}
	nameBytes, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	refCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	refs := make([]track.TrackReference, 0, refCount)
	for i := uint32(0); i < refCount; i++ {
		var typ [4]byte
		if _, err := io.ReadFull(r, typ[:]); err != nil {
			return nil, err
		}
		idCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		ids := make([]uint32, idCount)
		for j := range ids {
			v, err := readU32(r)
			if err != nil {
				return nil, err
			}
			ids[j] = v
		}
		refs = append(refs, track.TrackReference{Type: track.ReferenceType(typ), TrackIDs: ids})
	}

	return &track.Track{
		ID:            id,
		Kind:          track.Kind(kind),
		Timescale:     timescale,
		DurationTicks: duration,
		Enabled:       flags&0x1 != 0,
		InMovie:       flags&0x2 != 0,
		InPreview:     flags&0x4 != 0,
		Name:          string(nameBytes),
		References:    refs,
	}, nil
}

func readStsdRecord(r *bufio.Reader) (track.CodecConfig, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 1:
		sps, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		pps, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		return track.AVCConfig{SPS: sps, PPS: pps}, nil
	case 2:
		vps, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		sps, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		pps, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		var info track.HVCCInfo
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.GeneralProfileSpace = b
		tier, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.GeneralTierFlag = tier != 0
		profileIdc, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.GeneralProfileIdc = profileIdc
		compat, err := readU32(r)
		if err != nil {
			return nil, err
		}
		info.GeneralProfileCompat = compat
		if _, err := io.ReadFull(r, info.GeneralConstraint[:]); err != nil {
			return nil, err
		}
		levelIdc, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.GeneralLevelIdc = levelIdc
		chroma, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.ChromaFormat = chroma
		lumaDepth, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.BitDepthLumaMinus8 = lumaDepth
		chromaDepth, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		info.BitDepthChromaMinus8 = chromaDepth
		return track.HEVCConfig{VPS: vps, SPS: sps, PPS: pps, Info: info}, nil
	case 3:
		asc, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		channels, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		sampleSize, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		sampleRate, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return track.AACConfig{ASC: asc, Channels: channels, SampleSize: sampleSize, SampleRate: sampleRate}, nil
	default:
		return nil, nil
	}
}

func readSTTS(r *bufio.Reader, count uint32) ([]track.STTSRun, error) {
	runs := make([]track.STTSRun, count)
	for i := range runs {
		c, err := readU32(r)
		if err != nil {
			return nil, err
		}
		d, err := readU32(r)
		if err != nil {
			return nil, err
		}
		runs[i] = track.STTSRun{Count: c, Duration: d}
	}
	return runs, nil
}

func readSTSS(r *bufio.Reader, count uint32) ([]uint32, error) {
	entries := make([]uint32, count)
	for i := range entries {
		v, err := readU32(r)
		if err != nil {
			return nil, err
		}
		entries[i] = v
	}
	return entries, nil
}

func readSTSC(r *bufio.Reader, count uint32) ([]track.STSCRun, error) {
	runs := make([]track.STSCRun, count)
	for i := range runs {
		fc, err := readU32(r)
		if err != nil {
			return nil, err
		}
		spc, err := readU32(r)
		if err != nil {
			return nil, err
		}
		sdi, err := readU32(r)
		if err != nil {
			return nil, err
		}
		runs[i] = track.STSCRun{FirstChunk: fc, SamplesPerChunk: spc, SampleDescriptionID: sdi}
	}
	return runs, nil
}

func readSTSZ(r *bufio.Reader, count uint32) (track.STSZForm, error) {
	sampleSize, err := readU32(r)
	if err != nil {
		return track.STSZForm{}, err
	}
	sizes := make([]uint32, count)
	for i := range sizes {
		v, err := readU32(r)
		if err != nil {
			return track.STSZForm{}, err
		}
		sizes[i] = v
	}
	return track.STSZForm{SampleSize: sampleSize, Sizes: sizes}, nil
}

func readOffsets(r *bufio.Reader, boxType isobox.BoxType, count uint32) ([]uint64, error) {
	offsets := make([]uint64, count)
	for i := range offsets {
		if boxType == recCo64 {
			v, err := readU64(r)
			if err != nil {
				return nil, err
			}
			offsets[i] = v
		} else {
			v, err := readU32(r)
			if err != nil {
				return nil, err
			}
			offsets[i] = uint64(v)
		}
	}
	return offsets, nil
}

func readMetaRecord(r *bufio.Reader) (meta.Scope, string, meta.Value, error) {
	scopeByte, err := r.ReadByte()
	if err != nil {
		return 0, "", meta.Value{}, err
	}
	key, err := readLenPrefixed(r)
	if err != nil {
		return 0, "", meta.Value{}, err
	}
	kind, err := readU32(r)
	if err != nil {
		return 0, "", meta.Value{}, err
	}
	value, err := readLenPrefixed(r)
	if err != nil {
		return 0, "", meta.Value{}, err
	}
	return meta.Scope(scopeByte), string(key), meta.Value{Kind: meta.ValueKind(kind), Bytes: value}, nil
}

func readCoverRecord(r *bufio.Reader) (meta.ValueKind, []byte, error) {
	kind, err := readU32(r)
	if err != nil {
		return 0, nil, err
	}
	data, err := readLenPrefixed(r)
	if err != nil {
		return 0, nil, err
	}
	return meta.ValueKind(kind), data, nil
}
