package mux

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

var be = binary.BigEndian

// Record types used in the tables file. These aren't real ISOBMFF boxes
// on disk, just 4-CC markers borrowed from the box they describe so a
// reader can dispatch on the same constants the moov writer uses.
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

// trackJournal tracks how much of one track has already reached the
// tables file, so each Sync call appends only the rows added since the
// previous one.
type trackJournal struct {
	descriptorWritten bool
	syncedSamples     int
}

// journal is the writer side of the recovery format: a link file
// describing where things are, plus an append-only tables file of
// delta records. Sync calls journal methods directly since delta
// bookkeeping needs to see each track's live accumulator.
type journal struct {
	opts       RecoveryOptions
	tablesFile *os.File
	tracks     map[uint32]*trackJournal
	metaDone   map[string]bool
	coverDone  bool
}

func newJournal(opts RecoveryOptions) (*journal, error) {
	f, err := os.OpenFile(opts.TablesPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	j := &journal{
		opts:       opts,
		tablesFile: f,
		tracks:     make(map[uint32]*trackJournal),
		metaDone:   make(map[string]bool),
	}
	if err := j.writeLinkFile(); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *journal) trackState(id uint32) *trackJournal {
	ts, ok := j.tracks[id]
	if !ok {
		ts = &trackJournal{}
		j.tracks[id] = ts
	}
	return ts
}

// appendRecord writes one tables-file record: a parent track handle (0
// for file scope), a 4-CC record type, an item count, and payload bytes
// whose shape is determined by the (type, count) pair.
func (j *journal) appendRecord(trackHandle uint32, boxType isobox.BoxType, itemCount uint32, payload []byte) error {
	var hdr [12]byte
	be.PutUint32(hdr[0:4], trackHandle)
	copy(hdr[4:8], boxType[:])
	be.PutUint32(hdr[8:12], itemCount)
	if _, err := j.tablesFile.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := j.tablesFile.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// appendTrackDescriptor journals a track's identity and codec
// configuration the first time any of its samples are synced.
func (j *journal) appendTrackDescriptor(t *track.Track) error {
	ts := j.trackState(t.ID)
	if ts.descriptorWritten {
		return nil
	}

	var buf bytes.Buffer
	var flags uint32
	if t.Enabled {
		flags |= 0x1
	}
	if t.InMovie {
		flags |= 0x2
	}
	if t.InPreview {
		flags |= 0x4
	}
	binary.Write(&buf, be, uint32(t.Kind))
	binary.Write(&buf, be, flags)
	binary.Write(&buf, be, t.Timescale)
	binary.Write(&buf, be, t.DurationTicks)
	writeLenPrefixed(&buf, []byte(t.Name))
	binary.Write(&buf, be, uint32(len(t.References)))
	for _, ref := range t.References {
		buf.Write(ref.Type[:])
		binary.Write(&buf, be, uint32(len(ref.TrackIDs)))
		for _, id := range ref.TrackIDs {
			binary.Write(&buf, be, id)
		}
	}
	if err := j.appendRecord(t.ID, recTrak, 1, buf.Bytes()); err != nil {
		return err
	}

	if err := j.appendRecord(t.ID, recStsd, 1, encodeCodecConfig(t.Codec)); err != nil {
		return err
	}

	ts.descriptorWritten = true
	return nil
}

// encodeCodecConfig serializes a track's codec-config union as a 1-byte
// tag followed by its fields, for the stsd-equivalent journal record.
func encodeCodecConfig(c track.CodecConfig) []byte {
	var buf bytes.Buffer
	switch cfg := c.(type) {
	case track.AVCConfig:
		buf.WriteByte(1)
		writeLenPrefixed(&buf, cfg.SPS)
		writeLenPrefixed(&buf, cfg.PPS)
	case track.HEVCConfig:
		buf.WriteByte(2)
		writeLenPrefixed(&buf, cfg.VPS)
		writeLenPrefixed(&buf, cfg.SPS)
		writeLenPrefixed(&buf, cfg.PPS)
		buf.WriteByte(cfg.Info.GeneralProfileSpace)
		tier := byte(0)
		if cfg.Info.GeneralTierFlag {
			tier = 1
		}
		buf.WriteByte(tier)
		buf.WriteByte(cfg.Info.GeneralProfileIdc)
		binary.Write(&buf, be, cfg.Info.GeneralProfileCompat)
		buf.Write(cfg.Info.GeneralConstraint[:])
		buf.WriteByte(cfg.Info.GeneralLevelIdc)
		buf.WriteByte(cfg.Info.ChromaFormat)
		buf.WriteByte(cfg.Info.BitDepthLumaMinus8)
		buf.WriteByte(cfg.Info.BitDepthChromaMinus8)
	case track.AACConfig:
		buf.WriteByte(3)
		writeLenPrefixed(&buf, cfg.ASC)
		buf.WriteByte(cfg.Channels)
		buf.WriteByte(cfg.SampleSize)
		binary.Write(&buf, be, cfg.SampleRate)
	default:
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, be, uint32(len(b)))
	buf.Write(b)
}

// appendSamples journals the sample rows added to t since the previous
// sync. Only the new tail of the accumulator is run-length-encoded, so
// the tables file grows by the delta rather than the whole table on
// every call.
func (j *journal) appendSamples(t *track.Track, a *accum) error {
	ts := j.trackState(t.ID)
	total := len(a.sizes)
	from := ts.syncedSamples
	if from >= total {
		return nil
	}

	delta := track.Table{
		Sizes:   a.sizes[from:total],
		DTS:     a.dts[from:total],
		Offsets: a.offsets[from:total],
	}
	if a.hasComp {
		delta.CompositionOffsets = a.comp[from:total]
	}
	if a.hasSync {
		for _, idx := range a.sync {
			if int(idx) > from {
				delta.SyncIndices = append(delta.SyncIndices, idx-uint32(from))
			}
		}
	}

	c := track.Compress(delta, true)

	if err := j.appendSTTS(t.ID, c.STTS); err != nil {
		return err
	}
	if len(c.STSS) > 0 {
		if err := j.appendSTSS(t.ID, c.STSS); err != nil {
			return err
		}
	}
	if err := j.appendSTSC(t.ID, c.STSC); err != nil {
		return err
	}
	if err := j.appendSTSZ(t.ID, c.STSZ); err != nil {
		return err
	}
	if err := j.appendSTCO(t.ID, c.ChunkOffsets); err != nil {
		return err
	}

	ts.syncedSamples = total
	return nil
}

func (j *journal) appendSTTS(id uint32, runs []track.STTSRun) error {
	var buf bytes.Buffer
	for _, r := range runs {
		binary.Write(&buf, be, r.Count)
		binary.Write(&buf, be, r.Duration)
	}
	return j.appendRecord(id, recStts, uint32(len(runs)), buf.Bytes())
}

func (j *journal) appendSTSS(id uint32, entries []uint32) error {
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, be, e)
	}
	return j.appendRecord(id, recStss, uint32(len(entries)), buf.Bytes())
}

func (j *journal) appendSTSC(id uint32, runs []track.STSCRun) error {
	var buf bytes.Buffer
	for _, r := range runs {
		binary.Write(&buf, be, r.FirstChunk)
		binary.Write(&buf, be, r.SamplesPerChunk)
		binary.Write(&buf, be, r.SampleDescriptionID)
	}
	return j.appendRecord(id, recStsc, uint32(len(runs)), buf.Bytes())
}

func (j *journal) appendSTSZ(id uint32, f track.STSZForm) error {
	var buf bytes.Buffer
	binary.Write(&buf, be, f.SampleSize)
	for _, s := range f.Sizes {
		binary.Write(&buf, be, s)
	}
	return j.appendRecord(id, recStsz, uint32(len(f.Sizes)), buf.Bytes())
}

func (j *journal) appendSTCO(id uint32, offsets []uint64) error {
	var buf bytes.Buffer
	boxType := recStco
	needs64 := false
	for _, o := range offsets {
		if o > 0xffffffff {
			needs64 = true
			break
		}
	}
	if needs64 {
		boxType = recCo64
		for _, o := range offsets {
			binary.Write(&buf, be, o)
		}
	} else {
		for _, o := range offsets {
			binary.Write(&buf, be, uint32(o))
		}
	}
	return j.appendRecord(id, boxType, uint32(len(offsets)), buf.Bytes())
}

// appendMeta journals every metadata entry across all three scopes that
// hasn't been written to the tables file yet.
func (j *journal) appendMeta(scopes meta.Scopes) error {
	if err := j.appendScope(meta.ScopeMeta, "meta", scopes.Meta); err != nil {
		return err
	}
	if err := j.appendScope(meta.ScopeUdta, "udta", scopes.Udta); err != nil {
		return err
	}
	return j.appendScope(meta.ScopeUdtaRoot, "udtaroot", scopes.UdtaRoot)
}

func (j *journal) appendScope(scope meta.Scope, tag string, store meta.Store) error {
	for key, v := range store {
		id := tag + "/" + key
		if j.metaDone[id] {
			continue
		}
		var buf bytes.Buffer
		buf.WriteByte(byte(scope))
		writeLenPrefixed(&buf, []byte(key))
		binary.Write(&buf, be, uint32(v.Kind))
		writeLenPrefixed(&buf, v.Bytes)
		if err := j.appendRecord(0, recMeta, 1, buf.Bytes()); err != nil {
			return err
		}
		j.metaDone[id] = true
	}
	return nil
}

// appendCover journals the file-level cover image once.
func (j *journal) appendCover(c *meta.CoverBytes) error {
	if c == nil || j.coverDone {
		return nil
	}
	var buf bytes.Buffer
	binary.Write(&buf, be, uint32(c.Kind))
	writeLenPrefixed(&buf, c.Bytes)
	if err := j.appendRecord(0, recCovr, 1, buf.Bytes()); err != nil {
		return err
	}
	j.coverDone = true
	return nil
}

// writeLinkFile (re)writes the link file with the tables file's current
// size, so a crash between syncs still leaves a link file describing a
// consistent prefix of the tables file.
func (j *journal) writeLinkFile() error {
	info, err := j.tablesFile.Stat()
	if err != nil {
		return err
	}

	uuidLine := "DON'T CHECK UUID"
	if j.opts.CheckUUID {
		uuidLine = uuid.UUID(j.opts.StorageUUID).String()
	}

	f, err := os.Create(j.opts.LinkPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "2\n")
	fmt.Fprintf(w, "%s\n", j.opts.MediaPath)
	fmt.Fprintf(w, "%s\n", j.opts.TablesPath)
	fmt.Fprintf(w, "%d\n", info.Size())
	fmt.Fprintf(w, "%s\n", uuidLine)
	return w.Flush()
}

// close flushes a final link file and closes the tables file handle.
func (j *journal) close() error {
	if err := j.writeLinkFile(); err != nil {
		return err
	}
	return j.tablesFile.Close()
}
