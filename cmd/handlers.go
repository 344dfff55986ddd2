package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	logx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/logger"
)

func newHandlersCommand() *cobra.Command {
	var flags appFlags
	cmd := &cobra.Command{
		Use:   "handlers",
		Short: "List the enabled handlers in match order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(cmd, &flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logx.Component("handlers"))
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.newRouter()
			if err != nil {
				return err
			}

			t := table.New().Headers("NAME", "WEIGHT", "SLOTS", "TRIGGERS")
			if cfg.PlainPrompt {
				t = t.Border(lipgloss.HiddenBorder())
			}
			for _, def := range r.Handlers() {
				t = t.Row(def.Name, strconv.Itoa(def.Weight), strings.Join(def.Slots, ","), strings.Join(def.Triggers, "  "))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	flags.register(cmd)
	return cmd
}
