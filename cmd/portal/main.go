package main

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"docportal/internal/config"
	"docportal/internal/integrations/paramstore"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "Document approval portal client",
		Long:          "Review, discuss and approve legal documents from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newNormalizeCmd())
	cmd.AddCommand(newSandboxCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portal %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// resolveConfig loads the portal configuration. A non-empty baseURL wins over
// every other source.
func resolveConfig(ctx context.Context, path, host, baseURL string) (*config.Config, error) {
	cfg, err := config.Resolve(ctx, config.Sources{
		File:   path,
		Host:   host,
		Params: loadParams,
	})
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		if err := (config.Overrides{APIBaseURL: baseURL}).Apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadParams(ctx context.Context, prefix string) (paramstore.Getter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	store, err := paramstore.New(awsssm.NewFromConfig(awsCfg), prefix)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
