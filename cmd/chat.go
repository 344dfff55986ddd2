package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel/cli"
	logx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/logger"
)

func newChatCommand() *cobra.Command {
	var flags appFlags
	cmd := &cobra.Command{
		Use:   "chat [utterance...]",
		Short: "Talk to the handlers on the terminal",
		Long: "Reads one utterance per line from stdin. Words given as arguments are\n" +
			"handled first. Type q or bye outside a conversation to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd, &flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := logx.Component("chat")

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.newRouter()
			if err != nil {
				return err
			}

			var opts []cli.Option
			if cfg.PlainPrompt {
				opts = append(opts, cli.WithoutStyle())
			}
			term := cli.New(cmd.InOrStdin(), cmd.OutOrStdout(), opts...)
			defer term.Close()

			return channel.Run(ctx, term, r,
				channel.WithLogger(logger),
				channel.WithFirstUtterance(strings.Join(args, " ")),
			)
		},
	}
	flags.register(cmd)
	return cmd
}
