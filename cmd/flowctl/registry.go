package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the connector registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload connector definitions from disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				ConnectorCount int `json:"connectorCount"`
			}
			if err := postJSON(serverURL(cmd)+"/admin/registry/reload", nil, &out); err != nil {
				return err
			}
			fmt.Printf("reloaded %d connectors\n", out.ConnectorCount)
			return nil
		},
	})
	return cmd
}
