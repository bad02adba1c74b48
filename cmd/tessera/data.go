package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/transfer"
	"github.com/tessera-io/tessera/pkg/proto"
)

// filterFlags builds a record filter from command line flags. Pointer
// fields stay nil unless the flag was set.
type filterFlags struct {
	platform    string
	geocode     string
	recurse     bool
	source      string
	start       string
	end         string
	minCoverage float64
	maxCloud    float64
}

func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.platform, "platform", "", "restrict to one platform")
	flags.StringVar(&f.geocode, "geocode", "", "restrict to a geocode cell")
	flags.BoolVar(&f.recurse, "recurse", false, "include cells nested under --geocode")
	flags.StringVar(&f.source, "source", "", "restrict to one source: raw, split, fill or coalesce")
	flags.StringVar(&f.start, "start", "", "earliest capture time (RFC 3339)")
	flags.StringVar(&f.end, "end", "", "latest capture time (RFC 3339)")
	flags.Float64Var(&f.minCoverage, "min-coverage", 0, "minimum pixel coverage in [0,1]")
	flags.Float64Var(&f.maxCloud, "max-cloud", 0, "maximum cloud coverage in [0,1]")
}

func (f *filterFlags) build(cmd *cobra.Command) (model.Filter, error) {
	var out model.Filter
	set := cmd.Flags().Changed

	if set("platform") {
		out.Platform = &f.platform
	}
	if set("geocode") {
		out.Geocode = &f.geocode
	}
	out.Recurse = f.recurse
	if set("source") {
		out.Source = &f.source
	}
	if set("start") {
		t, err := time.Parse(time.RFC3339, f.start)
		if err != nil {
			return out, errors.Wrap(err, "parse --start")
		}
		ts := t.Unix()
		out.StartTimestamp = &ts
	}
	if set("end") {
		t, err := time.Parse(time.RFC3339, f.end)
		if err != nil {
			return out, errors.Wrap(err, "parse --end")
		}
		ts := t.Unix()
		out.EndTimestamp = &ts
	}
	if set("min-coverage") {
		out.MinPixelCoverage = &f.minCoverage
	}
	if set("max-cloud") {
		out.MaxCloudCoverage = &f.maxCloud
	}
	return out, nil
}

func newDataCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Store, transform and query raster data",
	}
	cmd.AddCommand(newDataStoreCommand(opts))
	cmd.AddCommand(newDataSplitCommand(opts))
	cmd.AddCommand(newDataFillCommand(opts))
	cmd.AddCommand(newDataCoalesceCommand(opts))
	cmd.AddCommand(newDataSearchCommand(opts))
	cmd.AddCommand(newDataListCommand(opts))
	return cmd
}

func newDataStoreCommand(opts *cliOptions) *cobra.Command {
	var (
		albumName string
		glob      string
		format    string
		precision int
		threads   int
	)
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Upload local raster files to a node and ingest them",
		Long: `
Uploads the files matching a local glob to the contacted node's staging
area, then starts a store task there. Tiles land on the node that owns
their geocode routing key only through later queries; the data itself
stays where it was stored.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			matches, err := filepath.Glob(glob)
			if err != nil {
				return errors.Wrap(err, "expand --glob")
			}
			if len(matches) == 0 {
				return errors.Errorf("no files match %q", glob)
			}

			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()

			node, err := contactedNode(ctx, conn, opts.addr)
			if err != nil {
				return err
			}
			for _, path := range matches {
				if err := transfer.Upload(ctx, nil, node, path); err != nil {
					return err
				}
				fmt.Printf("Uploaded %s\n", filepath.Base(path))
			}

			resp, err := proto.NewTaskServiceClient(conn).Dispatch(ctx, &proto.TaskDispatchRequest{
				Kind: model.TaskStore,
				Params: model.TaskParams{
					Album:       albumName,
					Glob:        filepath.Base(glob),
					Format:      format,
					Precision:   precision,
					ThreadCount: threads,
				},
			})
			if err != nil {
				return err
			}
			printDispatch(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&albumName, "album", "", "album to store into")
	cmd.Flags().StringVar(&glob, "glob", "", "local files to upload and ingest")
	cmd.Flags().StringVar(&format, "format", "generic", "raster format: generic, modis, naip or sentinel2")
	cmd.Flags().IntVar(&precision, "precision", 0, "geocode precision of stored tiles")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker threads per node")
	cmd.MarkFlagRequired("album")
	cmd.MarkFlagRequired("glob")
	cmd.MarkFlagRequired("precision")
	return cmd
}

func newDataSplitCommand(opts *cliOptions) *cobra.Command {
	var (
		albumName string
		target    int
		threads   int
		filter    filterFlags
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Subdivide stored tiles to a finer precision on every node",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			f, err := filter.build(c)
			if err != nil {
				return err
			}
			return dispatch(opts, model.TaskSplit, model.TaskParams{
				Album:           albumName,
				Filter:          f,
				TargetPrecision: target,
				ThreadCount:     threads,
			})
		},
	}
	cmd.Flags().StringVar(&albumName, "album", "", "album to transform")
	cmd.Flags().IntVar(&target, "target-precision", 0, "precision of the produced tiles")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker threads per node")
	filter.register(cmd)
	cmd.MarkFlagRequired("album")
	cmd.MarkFlagRequired("target-precision")
	return cmd
}

func newDataFillCommand(opts *cliOptions) *cobra.Command {
	var (
		albumName string
		window    int64
		threads   int
		filter    filterFlags
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Merge partial tiles sharing a scope into fuller ones",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			f, err := filter.build(c)
			if err != nil {
				return err
			}
			return dispatch(opts, model.TaskFill, model.TaskParams{
				Album:         albumName,
				Filter:        f,
				WindowSeconds: window,
				ThreadCount:   threads,
			})
		},
	}
	cmd.Flags().StringVar(&albumName, "album", "", "album to transform")
	cmd.Flags().Int64Var(&window, "window", 0, "group tiles captured within this many seconds (0 = exact)")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker threads per node")
	filter.register(cmd)
	cmd.MarkFlagRequired("album")
	return cmd
}

func newDataCoalesceCommand(opts *cliOptions) *cobra.Command {
	var (
		albumName string
		source    string
		window    int64
		threads   int
		filter    filterFlags
	)
	cmd := &cobra.Command{
		Use:   "coalesce",
		Short: "Compose tiles of one platform onto the footprints of another",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			f, err := filter.build(c)
			if err != nil {
				return err
			}
			return dispatch(opts, model.TaskCoalesce, model.TaskParams{
				Album:          albumName,
				Filter:         f,
				SourcePlatform: source,
				WindowSeconds:  window,
				ThreadCount:    threads,
			})
		},
	}
	cmd.Flags().StringVar(&albumName, "album", "", "album to transform")
	cmd.Flags().StringVar(&source, "source-platform", "", "platform supplying the pixels")
	cmd.Flags().Int64Var(&window, "window", 0, "pair tiles captured within this many seconds (0 = exact)")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker threads per node")
	filter.register(cmd)
	cmd.MarkFlagRequired("album")
	cmd.MarkFlagRequired("source-platform")
	return cmd
}

func newDataSearchCommand(opts *cliOptions) *cobra.Command {
	var (
		albumName string
		filter    filterFlags
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Aggregate record counts by geocode prefix across the cluster",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			f, err := filter.build(c)
			if err != nil {
				return err
			}

			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewDataServiceClient(conn).Search(ctx, &proto.SearchRequest{
				Album:     albumName,
				Filter:    f,
				Broadcast: true,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GEOCODE\tPLATFORM\tPRECISION\tSOURCE\tCOUNT")
			for _, e := range resp.Extents {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n",
					e.Geocode, e.Platform, e.Precision, e.Source, e.Count)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&albumName, "album", "", "album to search")
	filter.register(cmd)
	cmd.MarkFlagRequired("album")
	return cmd
}

func newDataListCommand(opts *cliOptions) *cobra.Command {
	var (
		albumName string
		filter    filterFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matching records across the cluster",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			f, err := filter.build(c)
			if err != nil {
				return err
			}

			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewDataServiceClient(conn).List(ctx, &proto.ListRequest{
				Album:     albumName,
				Filter:    f,
				Broadcast: true,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPLATFORM\tGEOCODE\tSUB\tTIME\tCOVERAGE\tCLOUD\tSOURCE")
			for _, r := range resp.Records {
				cloud := "-"
				if r.CloudCoverage != nil {
					cloud = fmt.Sprintf("%.2f", *r.CloudCoverage)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.2f\t%s\t%s\n",
					r.ID, r.Platform, r.Geocode, r.Subdataset,
					time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339),
					r.PixelCoverage, cloud, r.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&albumName, "album", "", "album to list")
	filter.register(cmd)
	cmd.MarkFlagRequired("album")
	return cmd
}
