package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered node executions",
	}

	var workflowID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered node executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := serverURL(cmd) + "/dlq"
			if workflowID != "" {
				url += "?workflowId=" + workflowID
			}
			var out struct {
				Items []struct {
					ExecutionID string `json:"ExecutionID"`
					NodeID      string `json:"NodeID"`
					LastError   string `json:"LastError"`
					Attempts    int    `json:"Attempts"`
				} `json:"items"`
			}
			if err := getJSON(url, &out); err != nil {
				return err
			}
			for _, item := range out.Items {
				fmt.Printf("%s\t%s\tattempts=%d\terror=%s\n", item.ExecutionID, item.NodeID, item.Attempts, item.LastError)
			}
			fmt.Printf("%d item(s)\n", len(out.Items))
			return nil
		},
	}
	list.Flags().StringVar(&workflowID, "workflow", "", "filter by workflow id")
	cmd.AddCommand(list)

	replay := &cobra.Command{
		Use:   "replay <executionId> <nodeId>",
		Short: "Replay a dead-lettered node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/executions/%s/nodes/%s/retry", serverURL(cmd), args[0], args[1])
			var out map[string]any
			if err := postJSON(url, nil, &out); err != nil {
				return err
			}
			fmt.Printf("replayed: %v\n", out["node"])
			return nil
		},
	}
	cmd.AddCommand(replay)

	return cmd
}
