// Package cmd holds the command-line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/config"
	logx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/logger"
)

type rootFlags struct {
	envFile string
	debug   bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "dialogue",
		Short:         "Rule-based task-oriented dialogue engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			configx.SetEnvFile(flags.envFile)
			if flags.debug {
				logx.Init(logx.Config{Debug: true, PrettyFormat: true})
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env", "", "path to a .env file (default ./.env when present)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "debug logging in console format")

	root.AddCommand(newChatCommand(), newServeCommand(), newHandlersCommand())
	return root
}

// Execute runs the command line until it returns or the process is
// interrupted, and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadAppConfig(cmd *cobra.Command, o *appFlags) (AppConfig, error) {
	cfg, err := configx.New[AppConfig]("DIALOGUE")
	if err != nil {
		return AppConfig{}, err
	}
	o.apply(cmd, cfg)
	return *cfg, nil
}

// appFlags override AppConfig for flags set on the command line.
type appFlags struct {
	rules    string
	messages string
	plugins  []string
	notes    string
	weather  bool
	plain    bool
}

func (o *appFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.rules, "rules", "", "YAML file of declarative handlers")
	f.StringVar(&o.messages, "messages", "", "YAML file overriding plugin messages")
	f.StringSliceVar(&o.plugins, "plugins", nil, "built-in plugins to enable (default all)")
	f.StringVar(&o.notes, "notes", "", "notes backend: none, memory, redis, postgres, upstash")
	f.BoolVar(&o.weather, "weather", true, "enable the Aemet weather plugin")
	f.BoolVar(&o.plain, "plain", false, "disable prompt colors")
}

func (o *appFlags) apply(cmd *cobra.Command, cfg *AppConfig) {
	f := cmd.Flags()
	if f.Changed("rules") {
		cfg.RulesFile = o.rules
	}
	if f.Changed("messages") {
		cfg.MessagesFile = o.messages
	}
	if f.Changed("plugins") {
		cfg.Plugins = o.plugins
	}
	if f.Changed("notes") {
		cfg.NotesBackend = o.notes
	}
	if f.Changed("weather") {
		cfg.Weather = o.weather
	}
	if f.Changed("plain") {
		cfg.PlainPrompt = o.plain
	}
}
