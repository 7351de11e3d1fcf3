// sonar-node runs on the sensor node. It accepts one operator connection
// at a time on the command port, sweeps the sonar servo across the
// selected field of view and streams the current angle to the operator
// over UDP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sonar/internal/config"
	"github.com/banshee-data/sonar/internal/ingest"
	"github.com/banshee-data/sonar/internal/servo"
	"github.com/banshee-data/sonar/internal/sweep"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) || errors.Is(err, errVersion) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

var errVersion = errors.New("version requested")

// parseFlags loads the optional config file and applies any flags given on
// the command line over it.
func parseFlags(args []string) (*config.NodeConfig, error) {
	var (
		configPath    string
		listen        string
		debugListen   string
		tick          time.Duration
		backoff       time.Duration
		telemetryPort int
		sourcePort    int
		backend       string
		serialPath    string
		baud          int
		channel       int
		showVersion   bool
	)

	flagSet := pflag.NewFlagSet("sonar-node", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a JSON or YAML node config file")
	flagSet.StringVar(&listen, "listen", ":1111", "TCP address for operator commands")
	flagSet.StringVar(&debugListen, "debug-listen", "", "serve /debug/ routes on this address (disabled when empty)")
	flagSet.DurationVar(&tick, "tick", 10*time.Millisecond, "sweep tick period")
	flagSet.DurationVar(&backoff, "accept-backoff", time.Second, "pause after a failed bind or accept")
	flagSet.IntVar(&telemetryPort, "telemetry-port", 1122, "UDP port telemetry is sent to on the operator host")
	flagSet.IntVar(&sourcePort, "telemetry-source-port", 2222, "UDP port telemetry is sent from")
	flagSet.StringVar(&backend, "servo", "sim", "servo backend: serial, pwm, sim or disabled")
	flagSet.StringVar(&serialPath, "serial-path", "/dev/ttyACM0", "servo controller serial device")
	flagSet.IntVar(&baud, "baud", servo.DefaultBaudRate, "servo controller baud rate")
	flagSet.IntVar(&channel, "servo-channel", 0, "servo controller or PWM channel")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if showVersion {
		fmt.Println(version.String("sonar-node"))
		return nil, errVersion
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg := &config.NodeConfig{}
	if configPath != "" {
		loaded, err := config.LoadNodeConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flagSet.Changed("listen") {
		cfg.Listen = &listen
	}
	if flagSet.Changed("debug-listen") {
		cfg.DebugListen = &debugListen
	}
	if flagSet.Changed("tick") {
		s := tick.String()
		cfg.TickPeriod = &s
	}
	if flagSet.Changed("accept-backoff") {
		s := backoff.String()
		cfg.AcceptBackoff = &s
	}
	if flagSet.Changed("telemetry-port") {
		cfg.TelemetryPort = &telemetryPort
	}
	if flagSet.Changed("telemetry-source-port") {
		cfg.TelemetrySource = &sourcePort
	}

	servoCfg := cfg.GetServo()
	if flagSet.Changed("servo") {
		servoCfg.Backend = &backend
	}
	if flagSet.Changed("serial-path") {
		servoCfg.SerialPath = &serialPath
	}
	if flagSet.Changed("baud") {
		servoCfg.BaudRate = &baud
	}
	if flagSet.Changed("servo-channel") {
		servoCfg.Channel = &channel
		servoCfg.PWMChannel = &channel
	}
	cfg.Servo = servoCfg

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// servoConfig maps the node's servo section onto the driver factory.
func servoConfig(c *config.ServoConfig) servo.Config {
	return servo.Config{
		Backend:    c.GetBackend(),
		SerialPath: c.GetSerialPath(),
		Port:       servo.PortOptions{BaudRate: c.GetBaudRate()},
		Channel:    uint8(c.GetChannel()),
		PWMRoot:    c.GetPWMRoot(),
		PWMChip:    c.GetPWMChip(),
		PWMChannel: c.GetPWMChannel(),
		Pulse:      servo.PulseRange{Min: c.GetMinPulse(), Max: c.GetMaxPulse()},
	}
}

// serve runs the command listener, the sweep loop and the optional debug
// server until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.NodeConfig) error {
	driver, err := servo.New(servoConfig(cfg.GetServo()))
	if err != nil {
		return fmt.Errorf("open servo: %w", err)
	}
	defer driver.Close()
	log.Printf("servo backend %s", cfg.GetServo().GetBackend())

	sender, err := telemetry.ListenSender(cfg.GetTelemetrySourcePort())
	if err != nil {
		return err
	}
	defer sender.Close()
	log.Printf("telemetry from %s to peer port %d", sender.LocalAddr(), cfg.GetTelemetryPort())

	controller := sweep.NewController(sweep.Config{
		Servo:         driver,
		Telemetry:     sender,
		TelemetryPort: uint16(cfg.GetTelemetryPort()),
		TickPeriod:    cfg.GetTickPeriod(),
	})
	listener := ingest.NewListener(ingest.Config{
		Address: cfg.GetListen(),
		Forward: controller.Inbox(),
		Backoff: cfg.GetAcceptBackoff(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Serve(ctx) })
	g.Go(func() error { return controller.Run(ctx) })

	if addr := cfg.GetDebugListen(); addr != "" {
		mux := http.NewServeMux()
		controller.AttachAdminRoutes(mux)
		server := &http.Server{Addr: addr, Handler: mux}

		g.Go(func() error {
			log.Printf("debug routes on http://%s/debug/", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("debug server shutdown error: %v", err)
				server.Close()
			}
			return nil
		})
	}

	err = g.Wait()
	log.Printf("sonar-node stopped")
	return err
}
