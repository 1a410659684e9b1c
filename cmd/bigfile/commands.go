package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvaleed/bigfile/internal/bigfile"
	"github.com/mvaleed/bigfile/internal/loader"
	"github.com/mvaleed/bigfile/internal/store"
)

var (
	folderColor = color.New(color.FgBlue, color.Bold)
	errorColor  = color.New(color.FgRed)
	labelColor  = color.New(color.Faint)
)

// withStore runs fn against the archive named by the first argument.
func withStore(g *globalFlags, cmd *cobra.Command, path string, fn func(*env, *store.Store) error) error {
	e, err := g.env(cmd.Flags())
	if err != nil {
		return err
	}
	defer e.log.Sync()

	s, err := e.openStore(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(e, s)
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>",
		Short: "Print the archive headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, cmd, args[0], func(_ *env, s *store.Store) error {
				printInfo(cmd.OutOrStdout(), s.Container())
				return nil
			})
		},
	}
}

func printInfo(w io.Writer, c *bigfile.Container) {
	seg, hdr := c.Segment(), c.Header()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(label string, value any) {
		fmt.Fprintf(tw, "%s\t%v\n", labelColor.Sprint(label), value)
	}
	row("segment", fmt.Sprintf("%d of %d", seg.SegmentIndex+1, seg.NumSegments))
	row("header offset", seg.HeaderOffset)
	row("total length", humanize.Bytes(seg.TotalLen))
	row("version", hdr.Version)
	row("root path", hdr.RootPath)
	row("load priority", hdr.LoadPriority)
	row("auto activate", hdr.AutoActivate)
	row("folders", hdr.NumFolders)
	row("files", hdr.NumFiles)

	stubs := 0
	for _, e := range c.Entries() {
		if e.Stub() {
			stubs++
		}
	}
	row("stubs", stubs)
	tw.Flush()
}

func newTreeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <archive>",
		Short: "Print the folder hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, cmd, args[0], func(_ *env, s *store.Store) error {
				t := s.Container().Tree()
				for _, root := range t.Roots() {
					printFolder(cmd.OutOrStdout(), t, root, 0)
				}
				return nil
			})
		},
	}
}

func printFolder(w io.Writer, t *bigfile.Tree, id bigfile.FolderID, depth int) {
	if depth > t.Len() {
		return
	}
	f, _ := t.Folder(id)
	fmt.Fprintf(w, "%*s%s %s\n", depth*2, "", folderColor.Sprint(f.Name+bigfile.PathSeparator),
		labelColor.Sprintf("[%d] %d files", id, len(t.ChildrenOf(id))))
	for _, sub := range t.Subfolders(id) {
		printFolder(w, t, sub, depth+1)
	}
}

func newLsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <archive> [folder-id]",
		Short: "List the files of a folder (all files when no folder is given)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, cmd, args[0], func(_ *env, s *store.Store) error {
				c := s.Container()
				var keys []bigfile.Key
				if len(args) == 2 {
					folder, err := parseFolder(args[1])
					if err != nil {
						return err
					}
					keys = c.Tree().ChildrenOf(folder)
				} else {
					for _, e := range c.Entries() {
						keys = append(keys, e.Key)
					}
				}
				return printFiles(cmd.OutOrStdout(), s, keys)
			})
		},
	}
}

func printFiles(w io.Writer, s *store.Store, keys []bigfile.Key) error {
	c := s.Container()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, labelColor.Sprint("KEY\tTYPE\tSIZE\tMODIFIED\tPATH"))
	for _, k := range keys {
		e, ok := c.Entry(k)
		if !ok {
			continue
		}
		dir, err := c.Tree().FullPath(e.Folder)
		if err != nil {
			dir = "?" + bigfile.PathSeparator
		}
		size := "stub"
		if n, err := c.PayloadSize(k); err == nil {
			size = humanize.Bytes(uint64(n))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%s\n",
			k, s.Registry().Name(e.Type), size, humanize.Time(e.ModTime()), dir, e.Name)
	}
	return tw.Flush()
}

func newRefsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refs <archive> <key>",
		Short: "Load one asset and print the keys it references",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[1])
			if err != nil {
				return err
			}
			return withStore(g, cmd, args[0], func(_ *env, s *store.Store) error {
				if _, err := s.Load(key); err != nil {
					return err
				}
				return printFiles(cmd.OutOrStdout(), s, s.References(key))
			})
		},
	}
}

func newCatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <archive> <key>",
		Short: "Write the body of an asset (after its reference list) to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[1])
			if err != nil {
				return err
			}
			return withStore(g, cmd, args[0], func(_ *env, s *store.Store) error {
				data, err := s.Container().Payload(key)
				if err != nil {
					return err
				}
				_, body, err := store.ExtractReferences(data)
				if err != nil {
					return bigfile.KeyError("cat", bigfile.ErrParse, key, err)
				}
				_, err = cmd.OutOrStdout().Write(body)
				return err
			})
		},
	}
}

func newWalkCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "walk <archive> <key>...",
		Short: "Load everything reachable from the given keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := make([]bigfile.Key, 0, len(args)-1)
			for _, a := range args[1:] {
				k, err := parseKey(a)
				if err != nil {
					return err
				}
				roots = append(roots, k)
			}
			return withStore(g, cmd, args[0], func(e *env, s *store.Store) error {
				l := loader.New(s, roots,
					loader.WithLogger(e.log),
					loader.WithTimeSlice(e.cfg.Loader.StepTimeSlice),
					loader.WithStepHook(func(step int, progress float64) {
						e.log.Debug("walk progress", zap.Int("step", step), zap.Float64("progress", progress))
					}))
				if err := l.Run(cmd.Context(), e.cfg.Loader.Budget); err != nil {
					return err
				}
				printWalk(cmd.OutOrStdout(), s, l)
				return nil
			})
		},
	}
}

func printWalk(w io.Writer, s *store.Store, l *loader.Loader) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range l.Types() {
		fmt.Fprintf(tw, "%s\t%d\n", s.Registry().Name(t), len(l.LoadedOfType(t)))
	}
	tw.Flush()
	fmt.Fprintf(w, "%s %d visited, %d loaded, %d skipped, %d failed\n",
		labelColor.Sprint("total:"), l.Visited(), l.Loaded(), l.Skipped(), len(l.Failures()))
	for _, f := range l.Failures() {
		errorColor.Fprintf(w, "  %s: %v\n", f.Key, f.Err)
	}
}
