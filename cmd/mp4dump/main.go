// Command mp4dump prints the box tree of an MP4 file.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tetsuo/isobox"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	if err := dump(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func dump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := isobox.NewScanner(f)
	for sc.Next() {
		e := sc.Entry()
		if !isobox.IsContainerBox(e.Type) {
			fmt.Printf("[%s] size=%d offset=%d\n", e.Type, e.Size, e.Offset)
			continue
		}

		buf := make([]byte, e.DataSize())
		if err := sc.ReadBody(buf); err != nil {
			return fmt.Errorf("reading %s body at offset %d: %w", e.Type, e.Offset, err)
		}

		tree := isobox.NewTree()
		r := isobox.NewReader(buf)
		isobox.BuildFromReader(tree, isobox.RootIndex, &r)

		fmt.Printf("[%s] size=%d offset=%d\n", e.Type, e.Size, e.Offset)
		for _, child := range tree.Children(isobox.RootIndex) {
			printNode(tree, child, 1)
		}
	}
	return sc.Err()
}

func printNode(tree *isobox.Tree, idx isobox.NodeIndex, depth int) {
	indent := strings.Repeat("  ", depth)
	typ := tree.Type(idx)

	switch {
	case tree.UUID(idx) != nil:
		uuid := tree.UUID(idx)
		fmt.Printf("%s[uuid %x]\n", indent, *uuid)
	case tree.IsUnknown(idx):
		fmt.Printf("%s[%s] (unrecognized)\n", indent, typ)
	case tree.Data(idx) != nil:
		fmt.Printf("%s[%s] bytes=%d\n", indent, typ, len(tree.Data(idx)))
	default:
		fmt.Printf("%s[%s]\n", indent, typ)
	}

	for _, c := range tree.Children(idx) {
		printNode(tree, c, depth+1)
	}
}
