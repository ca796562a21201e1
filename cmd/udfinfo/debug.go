package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	native "github.com/s0up4200/go-udfvfs/internal/fs/udf"
	"github.com/s0up4200/go-udfvfs/internal/logging"
)

var debugLog = logging.Component("debugudf")

type debugOptions struct {
	path  string
	depth int
	head  int
}

func newDebugCmd(opts *rootOptions) *cobra.Command {
	var o debugOptions
	cmd := &cobra.Command{
		Use:    "debug <image>",
		Short:  "Dump the volume structures and handle-level listing of an image",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(cmd.OutOrStdout(), args[0], o, opts.settings.FoldCase)
		},
	}
	cmd.Flags().StringVar(&o.path, "path", "", "Directory to dump, relative to the root")
	cmd.Flags().IntVar(&o.depth, "depth", 2, "Maximum directory depth to descend")
	cmd.Flags().IntVar(&o.head, "head", 8, "Bytes of each file to print")
	return cmd
}

func runDebug(w io.Writer, image string, o debugOptions, fold bool) error {
	r, err := native.NewReader(image, native.WithFoldCase(fold))
	if err != nil {
		debugLog.WithError(err).Errorf("open %s", image)
		return err
	}
	defer r.Close()

	icb := r.RootICB()
	fmt.Fprintf(w, "label=%q blockSize=%d partitionStart=%d fileSetLocation=%d\n", r.GetVolumeLabel(), r.BlockSize(), r.PartitionStart(), r.FileSetLocation())
	fmt.Fprintf(w, "partitionMaps=%v\n", r.DebugPartitionMaps())
	fmt.Fprintf(w, "rootICB: extentLen=%d lbn=%d pref=%d\n", icb.ExtentLength, icb.ExtentLocation.LogicalBlockNumber, icb.ExtentLocation.PartitionReferenceNumber)

	root := r.Root()
	if root == nil {
		debugLog.WithError(r.Err()).Error("root directory unavailable")
		return fmt.Errorf("%s: root directory unavailable: %w", image, r.Err())
	}
	defer root.Free()

	dir := root.Fopen(o.path)
	if dir == nil {
		debugLog.Errorf("path %q not found", o.path)
		return fmt.Errorf("%s: %q not found", image, o.path)
	}
	defer dir.Free()

	dumpDir(w, r, dir, 0, o)
	fmt.Fprintf(w, "open handles after walk: %d\n", r.OpenDirents()-2)
	return nil
}

func dumpDir(w io.Writer, r *native.Reader, dir *native.Dirent, level int, o debugOptions) {
	indent := strings.Repeat("  ", level)
	for d := dir.Opendir(); d != nil; d = d.Readdir() {
		fmt.Fprintf(w, "%s- %q mode=%06o links=%d len=%d loc=%d mtime=%s", indent, d.Filename(), d.PosixMode(), d.LinkCount(), d.FileLength(), d.Loc(), d.ModTime().Format("2006-01-02 15:04:05"))
		if d.IsDir() {
			fmt.Fprintln(w)
			if level+1 < o.depth {
				dumpDir(w, r, d, level+1, o)
			}
			continue
		}
		if o.head <= 0 {
			fmt.Fprintln(w)
			continue
		}

		buf := make([]byte, r.BlockSize())
		n := d.ReadBlock(buf, 0, 1)
		if n < 0 {
			debugLog.WithError(r.Err()).Warnf("read %q: driver code %d", d.Filename(), n)
			fmt.Fprintf(w, " read err=%d\n", n)
			continue
		}
		fmt.Fprintf(w, " head=%q\n", buf[:min(int(n), o.head)])
	}
}
