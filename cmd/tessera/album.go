package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tessera-io/tessera/pkg/proto"
)

func newAlbumCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "album",
		Short: "Manage albums",
	}
	cmd.AddCommand(newAlbumCreateCommand(opts))
	cmd.AddCommand(newAlbumListCommand(opts))
	cmd.AddCommand(newAlbumOpenCommand(opts))
	cmd.AddCommand(newAlbumCloseCommand(opts))
	return cmd
}

func newAlbumCreateCommand(opts *cliOptions) *cobra.Command {
	var (
		geocode   string
		keyLength int
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an album on every node",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewAlbumServiceClient(conn).Create(ctx, &proto.AlbumCreateRequest{
				Name:      args[0],
				Geocode:   geocode,
				KeyLength: keyLength,
				Propagate: true,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created album %s (%s, key length %d)\n",
				resp.Album.Name, resp.Album.Algorithm, resp.Album.KeyLength)
			return nil
		},
	}
	cmd.Flags().StringVar(&geocode, "geocode", "geohash", "geocode algorithm: geohash or quadtile")
	cmd.Flags().IntVar(&keyLength, "key-length", 3, "geocode prefix length used for placement")
	return cmd
}

func newAlbumListCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List albums",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewAlbumServiceClient(conn).List(ctx, &proto.AlbumListRequest{})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tGEOCODE\tKEY LENGTH\tSTATE")
			for _, a := range resp.Albums {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.Name, a.Algorithm, a.KeyLength, a.State)
			}
			return w.Flush()
		},
	}
}

func newAlbumOpenCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <name>",
		Short: "Build the album's index on every node",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewAlbumServiceClient(conn).Open(ctx, &proto.AlbumOpenRequest{
				Name:      args[0],
				Propagate: true,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Opened album %s (%d records indexed on the contacted node)\n",
				args[0], resp.Records)
			return nil
		},
	}
}

func newAlbumCloseCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <name>",
		Short: "Release the album's index on every node",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			if _, err := proto.NewAlbumServiceClient(conn).Close(ctx, &proto.AlbumCloseRequest{
				Name:      args[0],
				Propagate: true,
			}); err != nil {
				return err
			}
			fmt.Printf("Closed album %s\n", args[0])
			return nil
		},
	}
}
