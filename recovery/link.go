// Package recovery rebuilds a mux session from the link file and
// tables file a crashed process left behind, replaying every journaled
// record into a fresh mux.MuxState and truncating away any sample rows
// whose bytes never reached disk before the crash.
package recovery

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tetsuo/isobox"
)

// uuidSentinel is the literal link-file value meaning "don't verify the
// storage UUID".
const uuidSentinel = "DON'T CHECK UUID"

// supportedVersion is the only recovery_version this reader accepts.
const supportedVersion = "2"

// LinkFile is the parsed form of a recovery link file.
type LinkFile struct {
	Version    string
	MediaPath  string
	TablesPath string
	TablesSize int64
	// UUID is the parsed storage UUID, or nil if the link file carries
	// the "DON'T CHECK UUID" sentinel.
	UUID *[16]byte
}

// ParseLinkFile reads and parses the link file at path. It tolerates
// both LF and CRLF line endings (spec.md §9) and rejects any
// recovery_version other than "2".
func ParseLinkFile(path string) (LinkFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return LinkFile{}, isobox.NewError(isobox.KindIoError, "recovery.ParseLinkFile", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return LinkFile{}, isobox.NewError(isobox.KindIoError, "recovery.ParseLinkFile", err)
	}
	if len(lines) < 4 {
		return LinkFile{}, isobox.NewError(isobox.KindProtocolError, "recovery.ParseLinkFile", nil)
	}

	lf := LinkFile{
		Version:    lines[0],
		MediaPath:  lines[1],
		TablesPath: lines[2],
	}
	if lf.Version != supportedVersion {
		return LinkFile{}, isobox.NewError(isobox.KindUnsupported, "recovery.ParseLinkFile", nil)
	}

	size, err := strconv.ParseInt(lines[3], 10, 64)
	if err != nil {
		return LinkFile{}, isobox.NewError(isobox.KindProtocolError, "recovery.ParseLinkFile", err)
	}
	lf.TablesSize = size

	if len(lines) >= 5 && lines[4] != uuidSentinel && lines[4] != "" {
		u, err := parseUUID(lines[4])
		if err != nil {
			return LinkFile{}, isobox.NewError(isobox.KindProtocolError, "recovery.ParseLinkFile", err)
		}
		lf.UUID = &u
	}

	return lf, nil
}

func parseUUID(s string) ([16]byte, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, err
	}
	return [16]byte(u), nil
}
