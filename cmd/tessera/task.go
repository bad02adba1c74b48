package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/pkg/proto"
)

func newTaskCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and clear tasks",
	}
	cmd.AddCommand(newTaskListCommand(opts))
	cmd.AddCommand(newTaskShowCommand(opts))
	cmd.AddCommand(newTaskClearCommand(opts))
	return cmd
}

func newTaskListCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks on every node",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewTaskServiceClient(conn).List(ctx, &proto.TaskListRequest{Propagate: true})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NODE\tID\tKIND\tSTATE\tTOTAL\tDONE\tSKIPPED\tFAILED")
			for _, t := range resp.Tasks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					t.NodeID, t.ID, t.Kind, t.State,
					t.Progress.Total, t.Progress.Completed, t.Progress.Skipped, t.Progress.Failed)
			}
			return w.Flush()
		},
	}
}

func newTaskShowCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task on the contacted node",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewTaskServiceClient(conn).Show(ctx, &proto.TaskShowRequest{ID: args[0]})
			if err != nil {
				return err
			}

			t := resp.Task
			fmt.Printf("Task %s\n", t.ID)
			fmt.Printf("  Kind:      %s\n", t.Kind)
			fmt.Printf("  Node:      %d\n", t.NodeID)
			fmt.Printf("  Album:     %s\n", t.Params.Album)
			fmt.Printf("  State:     %s\n", t.State)
			fmt.Printf("  Progress:  %d/%d done, %d skipped, %d failed\n",
				t.Progress.Completed, t.Progress.Total, t.Progress.Skipped, t.Progress.Failed)
			if t.LastError != "" {
				fmt.Printf("  Last error: %s\n", t.LastError)
			}
			return nil
		},
	}
}

func newTaskClearCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks on every node",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			conn, err := opts.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.callCtx()
			defer cancel()
			resp, err := proto.NewTaskServiceClient(conn).Clear(ctx, &proto.TaskClearRequest{Propagate: true})
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d tasks\n", resp.Cleared)
			return nil
		},
	}
}

// dispatch sends a cluster-wide task and prints the per-node outcome.
func dispatch(opts *cliOptions, kind model.TaskKind, params model.TaskParams) error {
	conn, err := opts.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := opts.callCtx()
	defer cancel()
	resp, err := proto.NewTaskServiceClient(conn).Dispatch(ctx, &proto.TaskDispatchRequest{
		Kind:      kind,
		Params:    params,
		Propagate: true,
	})
	if err != nil {
		return err
	}
	printDispatch(resp)
	return nil
}

func printDispatch(resp *proto.TaskDispatchResponse) {
	for _, t := range resp.Tasks {
		if t.Error != "" {
			fmt.Printf("Node %d: failed to start: %s\n", t.NodeID, t.Error)
			continue
		}
		fmt.Printf("Node %d: task %s\n", t.NodeID, t.TaskID)
	}
}

// contactedNode resolves the node behind the CLI's --addr so uploads can
// reach its transfer port.
func contactedNode(ctx context.Context, conn *grpc.ClientConn, addr string) (model.Node, error) {
	resp, err := proto.NewClusterServiceClient(conn).ListNodes(ctx, &proto.NodeListRequest{})
	if err != nil {
		return model.Node{}, err
	}
	for _, n := range resp.Nodes {
		if n.RPCAddr() == addr {
			return n, nil
		}
	}
	return model.Node{}, errors.Errorf("no cluster node listens on %s", addr)
}
