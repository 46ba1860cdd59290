package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientgame "github.com/voltgrid/voltgrid/client/game"
	"github.com/voltgrid/voltgrid/client/frontend"
	"github.com/voltgrid/voltgrid/client/network"
	"github.com/voltgrid/voltgrid/pkg/api"
	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/console"
	"github.com/voltgrid/voltgrid/pkg/cvars"
	"github.com/voltgrid/voltgrid/pkg/game"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/metrics"
	"github.com/voltgrid/voltgrid/pkg/queue"
	"github.com/voltgrid/voltgrid/pkg/repositories"
	"github.com/voltgrid/voltgrid/pkg/servers"
	"github.com/voltgrid/voltgrid/pkg/version"
)

const (
	defaultTCPPort = 9001
	defaultUDPPort = 9002
	defaultAPIPort = 9003

	queueCapacity = 4096
)

type options struct {
	role        string
	tcpPort     int
	udpPort     int
	apiPort     int
	connect     string
	name        string
	observer    bool
	headless    bool
	logLevel    string
	database    string
	databaseURL string
	seed        uint64

	// withConsole is cleared for the in-process server in local mode so
	// only one goroutine reads stdin.
	withConsole bool
}

func main() {
	var opts options
	flag.StringVar(&opts.role, "role", "local", "one of local, client, server")
	flag.IntVar(&opts.tcpPort, "tcp-port", defaultTCPPort, "server tcp port")
	flag.IntVar(&opts.udpPort, "udp-port", defaultUDPPort, "server udp port")
	flag.IntVar(&opts.apiPort, "api-port", defaultAPIPort, "server debug http port")
	flag.StringVar(&opts.connect, "connect", "127.0.0.1", "server host to connect to")
	flag.StringVar(&opts.name, "name", "player", "player name")
	flag.BoolVar(&opts.observer, "observer", false, "connect as an observer")
	flag.BoolVar(&opts.headless, "headless", false, "run the client without a display")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&opts.database, "database", "", "sqlite database path for match results")
	flag.StringVar(&opts.databaseURL, "database-url", "", "postgres connection string for match results")
	flag.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "simulation seed")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	opts.withConsole = true

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	logLevel, err := log.ParseLogLevel(opts.logLevel)
	if err != nil {
		log.Fatal("Invalid log level: %v", err)
	}
	log.SetDefaultLogger(log.New(os.Stderr, "", log.DefaultLoggerFlag, logLevel))
	log.Info("Starting voltgrid %s", version.Get())

	registry := cvars.NewRegistry()
	if err := cvars.RegisterDefaults(registry); err != nil {
		log.Fatal("Failed to register cvars: %v", err)
	}
	// Trailing arguments are "name value" cvar pairs applied before the
	// first tick. A bad pair is a startup failure, not a warning.
	if err := registry.ApplyArgs(flag.Args()); err != nil {
		log.Fatal("Failed to apply cvar arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch opts.role {
	case "server":
		err = runServer(ctx, opts, registry)
	case "client":
		err = runClient(ctx, opts, registry)
	case "local":
		err = runLocal(ctx, opts, registry)
	default:
		log.Fatal("Unknown role %q", opts.role)
	}
	if err != nil && err != context.Canceled {
		log.Fatal("%v", err)
	}
}

func runServer(ctx context.Context, opts options, registry *cvars.Registry) error {
	messageRate, err := registry.GetFloat(cvars.SvMessageRate)
	if err != nil {
		return fmt.Errorf("failed to read message rate: %v", err)
	}

	sessionManager := clients.NewSessionManager(clients.NewSessionManagerOptions{
		MessageRate: messageRate,
	})
	messageQueue := queue.NewInMemoryQueue(queueCapacity)
	eventQueue := queue.NewInMemoryQueue(queueCapacity)

	repository, err := newRepository(ctx, opts)
	if err != nil {
		return err
	}
	if repository != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repository.Close(closeCtx); err != nil {
				log.Warn("Failed to close repository: %v", err)
			}
		}()
	}

	m := metrics.NewMetrics()
	gameManager := game.NewGameManager(game.NewGameManagerOptions{
		Registry:       registry,
		SessionManager: sessionManager,
		MessageQueue:   messageQueue,
		EventQueue:     eventQueue,
		Repository:     repository,
		Metrics:        m,
		Seed:           opts.seed,
	})

	tcpServer := servers.NewTCPServer(servers.NewTCPServerOptions{
		SessionManager: sessionManager,
		MessageQueue:   messageQueue,
		EventQueue:     eventQueue,
		Port:           opts.tcpPort,
	})
	udpServer := servers.NewUDPServer(servers.NewUDPServerOptions{
		SessionManager: sessionManager,
		MessageQueue:   messageQueue,
		Port:           opts.udpPort,
	})
	wsServer := servers.NewWSServer(servers.NewWSServerOptions{
		SessionManager: sessionManager,
		MessageQueue:   messageQueue,
		EventQueue:     eventQueue,
	})
	apiServer := api.NewServer(api.NewServerOptions{
		Port:           opts.apiPort,
		StatusProvider: gameManager,
		MetricsHandler: m.Handler(),
	})
	wsServer.RegisterRoutes(apiServer.Router())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)
	go func() { errCh <- tcpServer.Start(runCtx) }()
	go func() { errCh <- udpServer.Start(runCtx) }()
	go func() { errCh <- apiServer.Start(runCtx) }()

	if opts.withConsole {
		go runConsole(runCtx, cancel, console.NewConsole(registry))
	}

	// The game loop runs on this goroutine; when it returns the transports
	// are cancelled and the process winds down.
	err = gameManager.Start(runCtx)
	cancel()
	if err != nil && err != context.Canceled {
		return err
	}

	drain := time.After(time.Second)
	for i := 0; i < 3; i++ {
		select {
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				log.Warn("Server component exited: %v", err)
			}
		case <-drain:
			return nil
		}
	}
	return nil
}

func newRepository(ctx context.Context, opts options) (repositories.Repository, error) {
	switch {
	case opts.databaseURL != "":
		return repositories.NewPostgresRepository(ctx, opts.databaseURL)
	case opts.database != "":
		return repositories.NewSQLiteRepository(ctx, opts.database)
	default:
		return nil, nil
	}
}

func runClient(ctx context.Context, opts options, registry *cvars.Registry) error {
	messageQueue := queue.NewInMemoryQueue(queueCapacity)
	networkManager := network.NewManager(network.NewManagerOptions{
		TCPAddr:      fmt.Sprintf("%s:%d", opts.connect, opts.tcpPort),
		UDPAddr:      fmt.Sprintf("%s:%d", opts.connect, opts.udpPort),
		MessageQueue: messageQueue,
	})
	if err := networkManager.Connect(ctx, opts.name, opts.observer); err != nil {
		return fmt.Errorf("failed to connect: %v", err)
	}
	defer networkManager.Disconnect()

	g := clientgame.NewGame(clientgame.NewGameOptions{
		Registry:       registry,
		NetworkManager: networkManager,
		MessageQueue:   messageQueue,
		Frontend:       frontend.NewHeadless(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.withConsole {
		go runConsole(runCtx, cancel, console.NewConsole(registry))
	}

	return clientLoop(runCtx, registry, g)
}

// clientLoop drives the engine at the replicated tick rate, reacquired each
// frame so a server-side rate change takes hold without reconnecting.
func clientLoop(ctx context.Context, registry *cvars.Registry, g *clientgame.Game) error {
	tickRate, err := registry.GetInt(cvars.SvTickRate)
	if err != nil {
		return fmt.Errorf("failed to read tick rate: %v", err)
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.Update(); err != nil {
				return fmt.Errorf("failed to update game: %v", err)
			}
			if exit, err := registry.GetBool(cvars.DExitAfterOneFrame); err == nil && exit {
				log.Info("Exiting after one frame")
				return nil
			}
			if rate, err := registry.GetInt(cvars.SvTickRate); err == nil && rate != tickRate {
				tickRate = rate
				ticker.Reset(time.Second / time.Duration(tickRate))
			}
		}
	}
}

// runLocal starts a full server in-process and connects a client to it over
// loopback, which is the default way to play or smoke-test.
func runLocal(ctx context.Context, opts options, registry *cvars.Registry) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverOpts := opts
	serverOpts.withConsole = false
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- runServer(runCtx, serverOpts, registry)
	}()

	// Give the listeners a moment to come up before dialing.
	time.Sleep(250 * time.Millisecond)

	clientOpts := opts
	clientOpts.connect = "127.0.0.1"
	clientErr := runClient(runCtx, clientOpts, registry)
	cancel()

	if err := <-serverErr; err != nil && err != context.Canceled {
		return err
	}
	if clientErr != nil && clientErr != context.Canceled {
		return clientErr
	}
	return nil
}

// runConsole reads lines from stdin until EOF or quit.
func runConsole(ctx context.Context, cancel context.CancelFunc, c *console.Console) {
	fmt.Println(c.Greeting())
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		out, err := c.Execute(scanner.Text())
		if err != nil {
			if _, ok := err.(*console.ErrQuit); ok {
				cancel()
				return
			}
			fmt.Printf("error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}
