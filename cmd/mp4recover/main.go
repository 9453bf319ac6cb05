// Command mp4recover rebuilds a usable MP4 file from the link and
// tables files a crashed mux session left behind.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/tetsuo/isobox/recovery"
)

func main() {
	link := flag.String("link", "", "path to the recovery link file")
	uuidFlag := flag.String("uuid", "", "expected storage UUID, hex (optional; skips verification if empty)")
	flag.Parse()

	if *link == "" {
		fmt.Fprintln(os.Stderr, "usage: mp4recover --link <file.link> [--uuid <hex>]")
		os.Exit(1)
	}

	if err := run(*link, *uuidFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(linkPath, uuidHex string) error {
	var expected *[16]byte
	if uuidHex != "" {
		u, err := parseHexUUID(uuidHex)
		if err != nil {
			return fmt.Errorf("parsing --uuid: %w", err)
		}
		expected = &u
	}

	ms, err := recovery.Recover(linkPath, expected)
	if err != nil {
		return fmt.Errorf("recovering from %s: %w", linkPath, err)
	}

	if err := ms.Close(); err != nil {
		return fmt.Errorf("closing recovered file: %w", err)
	}

	fmt.Println("recovery complete")
	return nil
}

func parseHexUUID(s string) ([16]byte, error) {
	var u [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return u, err
	}
	if len(b) != 16 {
		return u, fmt.Errorf("want 16 bytes, got %d", len(b))
	}
	copy(u[:], b)
	return u, nil
}
