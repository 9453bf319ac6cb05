package mux

import (
	"sort"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/meta"
)

// writeUdta writes the moov/udta box: bare 4-CC value boxes for
// UDTA_ROOT entries (already length/language-prefixed by
// meta.Scopes.SetLocation and friends) and a udta/meta/ilst table for the
// 4-CC-keyed UDTA scope plus the file cover, if either is present. The
// reverse-DNS-keyed META scope follows udta as a sibling moov/meta
// keys+ilst box.
func writeUdta(w *isobox.Writer, scopes meta.Scopes, cover *meta.CoverBytes) {
	w.StartBox(isobox.TypeUdta)

	for _, k := range sortedKeys(scopes.UdtaRoot) {
		v := scopes.UdtaRoot[k]
		w.StartBox(boxTypeFromKey(k))
		w.PutBytes(v.Bytes)
		w.EndBox()
	}

	if len(scopes.Udta) > 0 || cover != nil {
		writeUdtaMeta(w, scopes.Udta, cover)
	}

	w.EndBox()

	if len(scopes.Meta) > 0 {
		writeMoovMeta(w, scopes.Meta)
	}
}

// writeMoovMeta writes the moov/meta box: a handler, an ordered keys
// table, and an ilst whose children are keyed by 1-based index into
// keys rather than by 4-CC, per spec.
func writeMoovMeta(w *isobox.Writer, store meta.Store) {
	keys := sortedKeys(store)

	w.StartFullBox(isobox.TypeMeta, 0, 0)
	w.WriteHdlr([4]byte{'m', 'd', 't', 'a'}, "")
	w.WriteKeys(keys)
	w.StartBox(isobox.TypeIlst)
	for i, k := range keys {
		v := store[k]
		w.WriteIlstItem(indexBoxType(uint32(i+1)), uint32(v.Kind), v.Bytes)
	}
	w.EndBox()
	w.EndBox()
}

// writeUdtaMeta writes the udta/meta box: a handler and an ilst whose
// children are keyed directly by their 4-CC tag, plus the file cover
// under the conventional "covr" tag if set.
func writeUdtaMeta(w *isobox.Writer, store meta.Store, cover *meta.CoverBytes) {
	w.StartFullBox(isobox.TypeMeta, 0, 0)
	w.WriteHdlr([4]byte{'m', 'd', 'i', 'r'}, "")
	w.StartBox(isobox.TypeIlst)
	for _, k := range sortedKeys(store) {
		v := store[k]
		w.WriteIlstItem(boxTypeFromKey(k), uint32(v.Kind), v.Bytes)
	}
	if cover != nil {
		w.WriteIlstItem(isobox.BoxType{'c', 'o', 'v', 'r'}, uint32(cover.Kind), cover.Bytes)
	}
	w.EndBox()
	w.EndBox()
}

func sortedKeys(store meta.Store) []string {
	keys := make([]string, 0, len(store))
	for k := range store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// boxTypeFromKey reinterprets a 4-byte metadata key string as a box
// type, for 4-CC-keyed entries (e.g. "\xa9ART").
func boxTypeFromKey(key string) isobox.BoxType {
	var t isobox.BoxType
	copy(t[:], key)
	return t
}

// indexBoxType encodes a 1-based keys-table index as the big-endian
// 4-byte box type moov/meta/ilst children use in place of a 4-CC.
func indexBoxType(v uint32) isobox.BoxType {
	return isobox.BoxType{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
