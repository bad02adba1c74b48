package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tessera-io/tessera/pkg/proto"
)

// cliOptions holds the flags shared by every subcommand.
type cliOptions struct {
	addr    string
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "tessera",
		Short:         "Client for a tessera raster cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "127.0.0.1:15606", "host:port of a cluster node")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "per-request timeout")

	root.AddCommand(newAlbumCommand(opts))
	root.AddCommand(newClusterCommand(opts))
	root.AddCommand(newDataCommand(opts))
	root.AddCommand(newTaskCommand(opts))
	return root
}

// dial opens a connection to the configured node.
func (o *cliOptions) dial() (*grpc.ClientConn, error) {
	return grpc.NewClient(o.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(proto.CodecName)),
	)
}

// callCtx returns a context bounded by the configured timeout.
func (o *cliOptions) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}
