package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
	"github.com/s0up4200/go-udfvfs/internal/fusefs"
	"github.com/s0up4200/go-udfvfs/internal/util"
	"github.com/s0up4200/go-udfvfs/pkg/udf"
)

// source is an opened image or directory.
type source struct {
	fsys  vfs.FileSystem
	image *vfs.UDFFileSystem // nil for directories
}

func (s *source) Close() error {
	if s.image == nil {
		return nil
	}
	return s.image.Unmount()
}

// openSource mounts src as a UDF image, or serves it from disk when it is
// a directory.
func (o *rootOptions) openSource(src string) (*source, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return &source{fsys: vfs.NewDiskFileSystem(src)}, nil
	}

	image := vfs.NewUDFFileSystem()
	err = image.Mount(src,
		udf.WithFoldCase(o.settings.FoldCase),
		udf.WithMaxReadBlocks(o.settings.MaxReadBlocks),
	)
	if err != nil {
		return nil, err
	}
	return &source{fsys: image, image: image}, nil
}

func newLsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <image|dir> [path]",
		Short: "List a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 2 {
				dir = args[1]
			}
			return runLs(cmd.OutOrStdout(), opts, args[0], dir)
		},
	}
	cmd.Flags().BoolVarP(&opts.long, "long", "l", false, "Use a long listing format")
	return cmd
}

func runLs(w io.Writer, opts *rootOptions, src, dir string) error {
	s, err := opts.openSource(src)
	if err != nil {
		return err
	}
	defer s.Close()

	md, err := s.fsys.Metadata(dir)
	if err != nil {
		return err
	}
	if !md.IsDir {
		return printEntry(w, opts, md)
	}

	names, err := s.fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !opts.long {
			fmt.Fprintln(w, util.QuoteName(name))
			continue
		}
		md, err := s.fsys.Metadata(path.Join(dir, name))
		if err != nil {
			return err
		}
		md.Name = name
		if err := printEntry(w, opts, md); err != nil {
			return err
		}
	}
	return nil
}

func printEntry(w io.Writer, opts *rootOptions, md vfs.Metadata) error {
	if !opts.long {
		_, err := fmt.Fprintln(w, util.QuoteName(md.Name))
		return err
	}
	links := "?"
	if md.Links > 0 {
		links = fmt.Sprint(md.Links)
	}
	_, err := fmt.Fprintf(w, "%s %3s %10s %s %s\n",
		util.FormatMode(md.Mode),
		links,
		formatLength(md, opts.settings.HumanSizes),
		util.FormatModTime(md.ModTime, time.Now()),
		util.QuoteName(md.Name),
	)
	return err
}

func formatLength(md vfs.Metadata, human bool) string {
	if !md.LengthKnown {
		return "?"
	}
	return util.FormatFileSize(md.Length, human)
}

func newCatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image|dir> <path>",
		Short: "Write a file to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSource(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := s.fsys.OpenFile(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		},
	}
}

func newStatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <image|dir> <path>",
		Short: "Show the metadata of a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSource(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			md, err := s.fsys.Metadata(args[1])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			kind := "regular file"
			if md.IsDir {
				kind = "directory"
			}
			fmt.Fprintf(w, "  Name: %s\n", util.QuoteName(md.Name))
			fmt.Fprintf(w, "  Type: %s\n", kind)
			if md.LengthKnown {
				fmt.Fprintf(w, "  Size: %d (%s)\n", md.Length, util.FormatFileSize(md.Length, true))
			} else {
				fmt.Fprintf(w, "  Size: unknown\n")
			}
			fmt.Fprintf(w, "  Mode: %s (%04o)\n", util.FormatMode(md.Mode), md.Mode.Perm())
			if md.Links > 0 {
				fmt.Fprintf(w, " Links: %d\n", md.Links)
			} else {
				fmt.Fprintf(w, " Links: unknown\n")
			}
			fmt.Fprintf(w, "Modify: %s (%s)\n", md.ModTime.Format(time.RFC3339), util.FormatAge(md.ModTime, time.Now()))
			if s.image != nil {
				fmt.Fprintf(w, " Label: %s\n", s.image.GetVolumeLabel())
			}
			return nil
		},
	}
}

func newTreeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <image> [path]",
		Short: "Print the directory tree of an image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSource(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			if s.image == nil {
				return fmt.Errorf("%s: tree needs a UDF image", args[0])
			}

			ix, err := udf.BuildIndex(s.image.Volume())
			if err != nil {
				return err
			}
			start := 0
			if len(args) == 2 {
				if start, err = ix.Lookup(args[1]); err != nil {
					return err
				}
			}
			return printTree(cmd.OutOrStdout(), ix, start, opts.settings.HumanSizes)
		},
	}
}

func printTree(w io.Writer, ix *udf.Index, start int, human bool) error {
	var dirs, files int
	err := ix.Walk(start, func(i, depth int) error {
		n := ix.Nodes[i]
		if depth == 0 {
			name := ix.Path(i)
			if i == 0 && ix.Label != "" {
				name = fmt.Sprintf("%s [%s]", name, ix.Label)
			}
			_, err := fmt.Fprintln(w, name)
			return err
		}

		name := util.QuoteName(string(n.Name))
		if n.IsDir {
			dirs++
			name += "/"
		} else {
			files++
			size := "?"
			if n.SizeKnown {
				size = util.FormatFileSize(n.Size, human)
			}
			name = fmt.Sprintf("%s (%s)", name, size)
		}
		_, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d directories, %d files\n", dirs, files)
	return err
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <image|dir> <dest>",
		Short: "Copy every file out of an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSource(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := os.MkdirAll(args[1], 0o755); err != nil {
				return err
			}
			n, err := extract(vfs.NewAferoFs(s.fsys, "src"), afero.NewBasePathFs(afero.NewOsFs(), args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d files to %s\n", n, args[1])
			return nil
		},
	}
}

// extract copies the tree of src into dst and returns the number of files
// written.
func extract(src, dst afero.Fs) (int, error) {
	var files int
	err := afero.Walk(src, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return dst.MkdirAll(p, 0o755)
		}

		f, err := src.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := afero.WriteReader(dst, p, f); err != nil {
			return fmt.Errorf("extract %s: %w", p, err)
		}
		if t := info.ModTime(); !t.IsZero() {
			if err := dst.Chtimes(p, t, t); err != nil {
				log.WithError(err).Warnf("keep modification time of %s", p)
			}
		}
		files++
		return nil
	})
	return files, err
}

func newMountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <image|dir> <mountpoint>",
		Short: "Serve an image read-only through FUSE until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSource(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			fsName := path.Base(args[0])
			if s.image != nil && s.image.GetVolumeLabel() != "" {
				fsName = s.image.GetVolumeLabel()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return fusefs.Mount(ctx, s.fsys, args[1], fusefs.Options{
				FSName:     fsName,
				AllowOther: opts.settings.AllowOther,
			})
		},
	}
	cmd.Flags().BoolVar(&opts.allowOther, "allow-other", false, "Allow other users to access the mount")
	return cmd
}
