package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	versionpkg "github.com/pandeptwidyaop/multisite/internal/version"
)

var configPath string

// SetVersion sets the version information
func SetVersion(v, b, g string) {
	versionpkg.Version = v
	versionpkg.BuildDate = b
	versionpkg.GitCommit = g
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "multisite-server",
	Short: "Multi-tenant site platform",
	Long: `multisite-server hosts many tenant sites from one deployment. It maps
each request's Host header to a tenant, sells plans through a payment
provider and provisions paid orders into live sites.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "path to config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Multisite Server")
			fmt.Fprintln(cmd.OutOrStdout(), "  "+versionpkg.GetVersion().String())
		},
	})
}
