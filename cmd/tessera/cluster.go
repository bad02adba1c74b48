package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tessera-io/tessera/pkg/proto"
)

func newClusterCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Inspect cluster membership",
	}
	cmd.AddCommand(newClusterListCommand(opts))
	return cmd
}

func newClusterListCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cluster nodes as seen by the contacted node",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewClusterServiceClient(conn).ListNodes(ctx, &proto.NodeListRequest{})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHOST\tRPC\tXFER\tGOSSIP\tTOKENS\tSTATE")
			for _, n := range resp.Nodes {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
					n.ID, n.Host, n.RPCPort, n.XferPort, n.GossipPort, len(n.Tokens), n.State)
			}
			return w.Flush()
		},
	}
}
