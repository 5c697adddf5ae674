// Command flowctl is the admin CLI for cmd/runtime-server: reloading the
// connector registry, listing and replaying dead-lettered nodes, and
// manually ticking a polling trigger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "flowctl",
		Short: "Admin CLI for the workflow automation runtime",
	}
	root.PersistentFlags().String("server", defaultServerURL(), "runtime-server base URL")

	root.AddCommand(registryCmd())
	root.AddCommand(dlqCmd())
	root.AddCommand(pollCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultServerURL() string {
	if v := os.Getenv("FLOWCTL_SERVER_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func serverURL(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("server")
	if v == "" {
		v = defaultServerURL()
	}
	return v
}
