package demux

import (
	"encoding/binary"
	"fmt"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

var be = binary.BigEndian

var (
	handlerVide = [4]byte{'v', 'i', 'd', 'e'}
	handlerSoun = [4]byte{'s', 'o', 'u', 'n'}
	handlerMeta = [4]byte{'m', 'e', 't', 'a'}
	handlerText = [4]byte{'t', 'e', 'x', 't'}
	handlerHint = [4]byte{'h', 'i', 'n', 't'}
	handlerSubp = [4]byte{'s', 'b', 't', 'l'}
	handlerChap = [4]byte{'c', 'h', 'a', 'p'}
)

func kindFromHandler(h [4]byte) track.Kind {
	switch h {
	case handlerVide:
		return track.KindVideo
	case handlerSoun:
		return track.KindAudio
	case handlerMeta:
		return track.KindMetadata
	case handlerText, handlerSubp:
		return track.KindText
	case handlerHint:
		return track.KindHint
	case handlerChap:
		return track.KindChapters
	default:
		return track.KindUnknown
	}
}

func parseTrak(r *isobox.Reader, ms *MediaState) (*track.Track, error) {
	t := &track.Track{}

	r.Enter()
	defer r.Exit()

	for r.Next() {
		switch r.Type() {
		case isobox.TypeTkhd:
			id, dur, w, h, flags := r.ReadTkhd()
			t.ID = id
			t.DurationTicks = dur
			t.Width = uint16(w >> 16)
			t.Height = uint16(h >> 16)
			t.Enabled = flags&0x1 != 0
			t.InMovie = flags&0x2 != 0
			t.InPreview = flags&0x4 != 0
		case isobox.TypeTref:
			parseTref(r, t)
		case isobox.TypeMdia:
			if err := parseMdia(r, t); err != nil {
				return nil, err
			}
		}
	}

	if t.ID == 0 {
		return nil, fmt.Errorf("track: missing or zero tkhd track_ID")
	}

	return t, nil
}

func parseTref(r *isobox.Reader, t *track.Track) {
	r.Enter()
	defer r.Exit()
	for r.Next() {
		data := r.Data()
		if len(data)%4 != 0 {
			continue // malformed tref entry: skipped
		}
		ids := make([]uint32, 0, len(data)/4)
		for i := 0; i+4 <= len(data); i += 4 {
			ids = append(ids, be.Uint32(data[i:i+4]))
		}
		t.AddReference(track.ReferenceType(r.Type()), ids)
	}
}

func parseMdia(r *isobox.Reader, t *track.Track) error {
	r.Enter()
	defer r.Exit()

	var handlerType [4]byte

	for r.Next() {
		switch r.Type() {
		case isobox.TypeMdhd:
			ts, dur, _ := r.ReadMdhd()
			t.Timescale = ts
			t.DurationTicks = dur
		case isobox.TypeHdlr:
			handlerType = r.ReadHdlr()
			t.Kind = kindFromHandler(handlerType)
			t.Name = r.ReadHdlrName()
		case isobox.TypeMinf:
			if err := parseMinf(r, t, handlerType); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseMinf(r *isobox.Reader, t *track.Track, handlerType [4]byte) error {
	r.Enter()
	defer r.Exit()
	for r.Next() {
		if r.Type() == isobox.TypeStbl {
			return parseStbl(r, t, handlerType)
		}
	}
	return fmt.Errorf("track %d: missing stbl box", t.ID)
}

type rawTables struct {
	stsd        []byte
	stszData    []byte
	sttsData    []byte
	stscData    []byte
	cttsData    []byte
	cttsVersion uint8
	stssData    []byte
	stcoData    []byte
	co64Data    []byte
	hasCo64     bool
}

func parseStbl(r *isobox.Reader, t *track.Track, handlerType [4]byte) error {
	var raw rawTables

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case isobox.TypeStsd:
			raw.stsd = r.RawBox()
			parseStsd(r, t, handlerType)
		case isobox.TypeStsz:
			raw.stszData = r.Data()
		case isobox.TypeStts:
			raw.sttsData = r.Data()
		case isobox.TypeStsc:
			raw.stscData = r.Data()
		case isobox.TypeCtts:
			raw.cttsData = r.Data()
			raw.cttsVersion = r.Version()
		case isobox.TypeStss:
			raw.stssData = r.Data()
		case isobox.TypeStco:
			raw.stcoData = r.Data()
		case isobox.TypeCo64:
			raw.co64Data = r.Data()
			raw.hasCo64 = true
		}
	}
	r.Exit()

	_ = raw.stsd

	compressed, err := compressedFromRaw(raw)
	if err != nil {
		return fmt.Errorf("track %d: %w", t.ID, err)
	}
	table, err := track.Expand(compressed)
	if err != nil {
		return isobox.NewError(isobox.KindProtocolError, "demux.parseStbl", fmt.Errorf("track %d: %w", t.ID, err))
	}
	t.Samples = table
	return nil
}

func compressedFromRaw(raw rawTables) (track.Compressed, error) {
	if raw.stszData == nil || raw.sttsData == nil || raw.stscData == nil {
		return track.Compressed{}, fmt.Errorf("missing required sample table data (stsz/stts/stsc)")
	}
	if raw.stcoData == nil && !raw.hasCo64 {
		return track.Compressed{}, fmt.Errorf("missing chunk offset data (stco/co64)")
	}

	var c track.Compressed

	stszIt := isobox.NewStszIter(raw.stszData)
	n := int(stszIt.Count())
	sizes := make([]uint32, 0, n)
	uniform := true
	first := uint32(0)
	for i := 0; ; i++ {
		v, ok := stszIt.Next()
		if !ok {
			break
		}
		if i == 0 {
			first = v
		} else if v != first {
			uniform = false
		}
		sizes = append(sizes, v)
	}
	if uniform && len(sizes) > 0 {
		c.STSZ.SampleSize = first
	} else {
		c.STSZ.Sizes = sizes
	}

	sttsIt := isobox.NewSttsIter(raw.sttsData)
	for {
		e, ok := sttsIt.Next()
		if !ok {
			break
		}
		c.STTS = append(c.STTS, track.STTSRun{Count: e.Count, Duration: e.Duration})
	}

	stscIt := isobox.NewStscIter(raw.stscData)
	for {
		e, ok := stscIt.Next()
		if !ok {
			break
		}
		c.STSC = append(c.STSC, track.STSCRun{
			FirstChunk:          e.FirstChunk,
			SamplesPerChunk:     e.SamplesPerChunk,
			SampleDescriptionID: e.SampleDescriptionId,
		})
	}

	if raw.hasCo64 {
		it := isobox.NewCo64Iter(raw.co64Data)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			c.ChunkOffsets = append(c.ChunkOffsets, v)
		}
	} else {
		it := isobox.NewUint32Iter(raw.stcoData)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			c.ChunkOffsets = append(c.ChunkOffsets, uint64(v))
		}
	}

	if raw.cttsData != nil {
		it := isobox.NewCttsIter(raw.cttsData, raw.cttsVersion)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			c.CTTS = append(c.CTTS, track.CTTSRun{Count: e.Count, Offset: e.Offset})
		}
	}

	if raw.stssData != nil {
		it := isobox.NewUint32Iter(raw.stssData)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			c.STSS = append(c.STSS, v)
		}
	}

	return c, nil
}

func parseStsd(r *isobox.Reader, t *track.Track, handlerType [4]byte) {
	data := r.Data()
	if len(data) < 4 {
		return
	}

	r.Enter()
	r.Skip(4)

	if !r.Next() {
		r.Exit()
		return
	}

	entryType := r.Type()
	entryData := r.Data()

	switch {
	case handlerType == handlerVide && entryType == isobox.TypeAvc1:
		v := isobox.ReadVisualSampleEntry(entryData)
		t.Width = v.Width
		t.Height = v.Height
		r.Enter()
		r.Skip(v.ChildOffset)
		for r.Next() {
			if r.Type() == isobox.TypeAvcC {
				if sps, pps, ok := isobox.ReadAvcC(r.Data()); ok {
					t.Codec = track.AVCConfig{SPS: sps, PPS: pps}
				}
				break
			}
		}
		r.Exit()

	case handlerType == handlerVide && entryType == isobox.TypeHvc1:
		v := isobox.ReadVisualSampleEntry(entryData)
		t.Width = v.Width
		t.Height = v.Height
		r.Enter()
		r.Skip(v.ChildOffset)
		for r.Next() {
			if r.Type() == isobox.TypeHvcC {
				if info, vps, sps, pps, ok := isobox.ReadHvcC(r.Data()); ok {
					t.Codec = track.HEVCConfig{
						VPS: vps, SPS: sps, PPS: pps,
						Info: track.HVCCInfo(info),
					}
				}
				break
			}
		}
		r.Exit()

	case handlerType == handlerSoun && entryType == isobox.TypeMp4a:
		a := isobox.ReadAudioSampleEntry(entryData)
		r.Enter()
		r.Skip(a.ChildOffset)
		for r.Next() {
			if r.Type() == isobox.TypeEsds {
				if cfg, ok := isobox.ReadEsds(r.Data()); ok {
					t.Codec = track.AACConfig{
						ASC:        cfg.SpecificInfo,
						Channels:   uint8(a.ChannelCount),
						SampleSize: uint8(a.SampleSize),
						SampleRate: a.SampleRate >> 16,
					}
				}
				break
			}
		}
		r.Exit()
	}

	r.Exit()
}

func parseUdta(r *isobox.Reader, ms *MediaState) {
	r.Enter()
	defer r.Exit()
	for r.Next() {
		if r.Type() == isobox.TypeMeta {
			parseUdtaMeta(r, ms)
			continue
		}
		ms.Meta.UdtaRoot[r.Type().String()] = meta.Value{Kind: meta.KindUTF8, Bytes: r.Data()}
	}
}

func parseMoovMeta(r *isobox.Reader, ms *MediaState) {
	r.Enter()
	var keys []string
	for r.Next() {
		switch r.Type() {
		case isobox.TypeKeys:
			keys = parseKeys(r)
		case isobox.TypeIlst:
			parseIlst(r, ms.Meta.Meta, keys)
		}
	}
	r.Exit()
}

func parseUdtaMeta(r *isobox.Reader, ms *MediaState) {
	r.Enter()
	for r.Next() {
		if r.Type() == isobox.TypeIlst {
			parseIlstByTag(r, ms)
		}
	}
	r.Exit()
}

// parseKeys reads the moov/meta/keys table: a full-box entry_count
// followed by entries, each laid out like a box (size+4CC namespace+
// value) even though it isn't one — "mdta" namespace entries hold the
// reverse-DNS key string as their value.
func parseKeys(r *isobox.Reader) []string {
	data := r.Data()
	if len(data) < 4 {
		return nil
	}
	var keys []string
	kr := isobox.NewReader(data[4:])
	for kr.Next() {
		keys = append(keys, string(kr.Data()))
	}
	return keys
}

// parseIlst reads a moov/meta/ilst table whose children are numerically
// typed (a big-endian uint32 1-based index into keys, not an ASCII 4-CC).
func parseIlst(r *isobox.Reader, store meta.Store, keys []string) {
	r.Enter()
	defer r.Exit()
	for r.Next() {
		idxType := r.Type()
		idx := int(be.Uint32(idxType[:]))
		if idx < 1 || idx > len(keys) {
			continue
		}
		key := keys[idx-1]
		r.Enter()
		for r.Next() {
			if r.Type() != isobox.TypeData {
				continue
			}
			d := r.Data()
			if len(d) < 4 {
				continue
			}
			kind := meta.ValueKind(r.Flags())
			store[key] = meta.Value{Kind: kind, Bytes: d[4:]}
		}
		r.Exit()
	}
}

var coverTag = isobox.BoxType{'c', 'o', 'v', 'r'}

// parseIlstByTag reads a udta/meta/ilst table whose children are keyed by
// 4-CC into the UDTA scope; a "covr" item also sets ms.Cover.
func parseIlstByTag(r *isobox.Reader, ms *MediaState) {
	store := ms.Meta.Udta
	r.Enter()
	defer r.Exit()
	for r.Next() {
		tag := r.Type()
		r.Enter()
		for r.Next() {
			if r.Type() != isobox.TypeData {
				continue
			}
			d := r.Data()
			if len(d) < 4 {
				continue
			}
			kind := meta.ValueKind(r.Flags())
			store[tag.String()] = meta.Value{Kind: kind, Bytes: d[4:]}
			if tag == coverTag {
				ms.Cover = &meta.Cover{Offset: int64(r.DataOffset() + 4), Size: uint32(len(d) - 4), Kind: kind}
			}
		}
		r.Exit()
	}
}
