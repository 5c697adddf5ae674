package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Manage polling triggers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tick <triggerId>",
		Short: "Manually run one poll cycle for a registered trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/triggers/poll/%s/tick", serverURL(cmd), args[0])
			var out map[string]any
			if err := postJSON(url, nil, &out); err != nil {
				return err
			}
			fmt.Println("tick dispatched")
			return nil
		},
	})
	return cmd
}
