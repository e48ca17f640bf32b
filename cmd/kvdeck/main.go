package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/kvdeck/pkg/client"
	"github.com/cuemby/kvdeck/pkg/config"
	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/metrics"
	"github.com/cuemby/kvdeck/pkg/navigation"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	// annotationRoute names the route a command navigates to before it runs
	annotationRoute = "kvdeck/route"

	// annotationNoClient marks commands that run without configuration
	annotationNoClient = "kvdeck/no-client"
)

var errLoginRequired = errors.New("not logged in")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	loginPending := a.loginPending()
	a.close()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if loginPending || errors.Is(err, errLoginRequired) || errors.Is(err, transport.ErrAuthenticationLost) {
			fmt.Fprintln(stderr, "Run 'kvdeck login' to sign in.")
		}
		return 1
	}
	return 0
}

// app carries the state shared by every command of one invocation
type app struct {
	cfg    *config.Config
	client *client.Client
	broker *events.Broker
	sub    events.Subscriber

	// eventsDone is closed once every event has been logged
	eventsDone chan struct{}

	// decision is the navigation outcome of the command's route
	decision navigation.Decision

	stopMetrics context.CancelFunc
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "kvdeck",
		Short: "kvdeck - browse and edit the etcd key space of managed clusters",
		Long: `kvdeck talks to a cluster-management API server. It keeps a login
session between invocations, manages the registry of Kubernetes cluster
connections and browses the etcd key space of a selected cluster.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.SetVersionTemplate(fmt.Sprintf(
		"kvdeck version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default "+config.ConfigFile()+")")
	flags.String("server", "", "API server base URL")
	flags.String("data-dir", "", "Directory for the session and local state")
	flags.Duration("timeout", 0, "Request timeout")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("json-logs", false, "Write logs as JSON")
	flags.String("ca-cert", "", "CA certificate for the API server")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("metrics", "", "Expose Prometheus metrics on this address")
	flags.String("delimiter", "", "Key segment delimiter")
	flags.BoolP("verbose", "v", false, "Log client events")
	flags.StringP("output", "o", "table", "Output format (table, json)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newPingCmd(a))
	root.AddCommand(newLoginCmd(a))
	root.AddCommand(newLogoutCmd(a))
	root.AddCommand(newWhoamiCmd(a))
	root.AddCommand(newClusterCmd(a))
	root.AddCommand(newEtcdCmd(a))
	root.AddCommand(newApplyCmd(a))

	return root
}

// setup loads configuration, builds the client and runs the command's
// route through the navigation gate
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[annotationNoClient] != "" {
		return nil
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     cmd.ErrOrStderr(),
	})

	opts := client.Options{Config: cfg}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		a.broker = events.NewBroker()
		a.broker.Start()
		a.sub = a.broker.Subscribe()
		a.eventsDone = make(chan struct{})
		go logEvents(a.sub, a.eventsDone)
		opts.Events = a.broker
	}

	c, err := client.New(opts)
	if err != nil {
		return err
	}
	a.client = c

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cmd.Context(), cfg.MetricsAddr)
	}

	route := routeOf(cmd)
	if route == "" {
		return nil
	}
	d, err := c.Navigate(cmd.Context(), route)
	if err != nil {
		return err
	}
	a.decision = d
	if d.Target() == navigation.RouteLogin && route != navigation.RouteLogin {
		return errLoginRequired
	}
	return nil
}

func (a *app) serveMetrics(ctx context.Context, addr string) {
	ctx, cancel := context.WithCancel(ctx)
	a.stopMetrics = cancel

	logger := log.WithComponent("metrics")
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Debug().Str("addr", addr).Msg("serving metrics")
}

func logEvents(sub events.Subscriber, done chan<- struct{}) {
	defer close(done)
	logger := log.WithComponent("events")
	for event := range sub {
		e := logger.Info().Str("type", string(event.Type))
		for k, v := range event.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(event.Message)
	}
}

func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			log.Errorf("failed to close client", err)
		}
	}
	if a.broker != nil {
		// Stop flushes the queue into the subscription, which the logger
		// drains before the channel closes
		a.broker.Stop()
		a.broker.Unsubscribe(a.sub)
		<-a.eventsDone
	}
}

// loginPending reports whether a request of this invocation was rejected
// for a lost session and the login route has not been shown since
func (a *app) loginPending() bool {
	if a.client == nil {
		return false
	}
	_, pending := a.client.Gate().PendingRedirect()
	return pending
}

// routeOf returns the route of cmd or of its nearest annotated parent
func routeOf(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if route := c.Annotations[annotationRoute]; route != "" {
			return route
		}
	}
	return ""
}

// withRoute annotates cmd with the route it navigates to
func withRoute(cmd *cobra.Command, route string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationRoute] = route
	return cmd
}
