package cmd

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel/httpapi"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel/tcp"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/events"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/metrics"
	routerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/router"
	sessionx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/session"
	configx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/config"
	logx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/logger"
	qstashx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/qstash"
)

type serveFlags struct {
	appFlags
	tcpAddr  string
	httpAddr string
}

func newServeCommand() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over TCP and HTTP",
		Long: "Every TCP connection is its own session. HTTP clients name their session\n" +
			"in the URL. An empty address disables that transport.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(cmd, &flags.appFlags)
			if err != nil {
				return err
			}
			tcpCfg, err := configx.New[tcp.Config]("TCP")
			if err != nil {
				return err
			}
			httpCfg, err := configx.New[httpapi.Config]("HTTP")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tcp-addr") {
				tcpCfg.Addr = flags.tcpAddr
			}
			if cmd.Flags().Changed("http-addr") {
				httpCfg.Addr = flags.httpAddr
			}
			if tcpCfg.Addr == "" && httpCfg.Addr == "" {
				return errors.New("both transports are disabled")
			}
			return serve(cmd.Context(), cfg, *tcpCfg, *httpCfg)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.tcpAddr, "tcp-addr", "", "TCP listen address (default from TCP_ADDR)")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "HTTP listen address (default from HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg AppConfig, tcpCfg tcp.Config, httpCfg httpapi.Config) error {
	logger := logx.Component("serve")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}

	observers := routerx.Observers{collector}
	var publisher *events.Publisher
	if cfg.EventsDestination != "" {
		qcfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return err
		}
		client, err := qstashx.NewClient(*qcfg)
		if err != nil {
			return err
		}
		publisher = events.NewPublisher(client, cfg.EventsDestination, events.WithLogger(logx.Component("events")))
		observers = append(observers, publisher)
	}

	sessions := sessionx.NewManager(
		func(id string) (*routerx.Router, error) {
			return a.newRouter(
				routerx.WithObserver(observers),
				routerx.WithLogger(logger.With().Str("session", id).Logger()),
			)
		},
		sessionx.WithIdleTTL(cfg.SessionIdleTTL),
		sessionx.WithLogger(logx.Component("sessions")),
		sessionx.WithSizeHook(collector.SetSessions),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessions.Run(ctx, cfg.SweepInterval)
	})
	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(ctx)
		})
	}
	if tcpCfg.Addr != "" {
		srv := tcp.NewServer(sessions,
			tcp.WithLogger(logx.Component("tcp")),
			tcp.WithIdleTimeout(tcpCfg.IdleTimeout),
		)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, tcpCfg.Addr)
		})
	}
	if httpCfg.Addr != "" {
		httpLogger := logx.Component("http")
		h := httpapi.NewHandler(sessions, httpapi.WithLogger(httpLogger), httpapi.WithMetrics(reg))
		g.Go(func() error {
			return httpapi.ListenAndServe(ctx, httpCfg.Addr, h, httpCfg.ShutdownTimeout, httpLogger)
		})
	}

	err = g.Wait()
	logger.Info().Err(err).Msg("transports stopped")
	return err
}
