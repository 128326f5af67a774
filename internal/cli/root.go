package cli

import (
	"github.com/spf13/cobra"
)

// Execute 运行 relayctl 命令行
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd 构建命令树，每次调用返回独立实例
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Operate the quota relay: tokens, grants, payment requests and notices",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "config file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputJSON, "output format: json|yaml")

	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newGrantCmd(opts))
	cmd.AddCommand(newCommandsCmd(opts))
	cmd.AddCommand(newPaymentCmd(opts))
	cmd.AddCommand(newPushCmd(opts))
	cmd.AddCommand(newNoticesCmd(opts))
	cmd.AddCommand(newSummaryCmd(opts))

	return cmd
}
