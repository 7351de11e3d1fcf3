// sonar-console is the operator's terminal UI. It connects to a sonar node
// over TCP, sends sweep commands and shows the live angle streamed back
// over UDP.
//
// With --replay it plays back telemetry from a packet capture instead,
// without connecting to anything.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/banshee-data/sonar/internal/config"
	"github.com/banshee-data/sonar/internal/connection"
	"github.com/banshee-data/sonar/internal/console"
	"github.com/banshee-data/sonar/internal/dispatcher"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var errVersion = errors.New("version requested")

type options struct {
	cfg         *config.ConsoleConfig
	replayPath  string
	replayPort  int
	replaySpeed float64
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) || errors.Is(err, errVersion) {
			return nil
		}
		return err
	}

	// The UI owns the terminal, so diagnostics go to a file or nowhere.
	if path := opts.cfg.GetLogFile(); path != "" {
		f, err := tea.LogToFile(path, "sonar-console")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	if opts.replayPath != "" {
		return runReplay(opts)
	}
	return runLive(opts.cfg)
}

func parseFlags(args []string) (*options, error) {
	var (
		configPath     string
		address        string
		telemetryPort  int
		connectTimeout time.Duration
		writeTimeout   time.Duration
		logFile        string
		showVersion    bool
	)
	opts := &options{}

	flagSet := pflag.NewFlagSet("sonar-console", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a JSON or YAML console config file")
	flagSet.StringVarP(&address, "address", "a", "", "node command address to pre-fill, host:port")
	flagSet.IntVar(&telemetryPort, "telemetry-port", telemetry.Port, "UDP port to receive telemetry on")
	flagSet.DurationVar(&connectTimeout, "connect-timeout", connection.DefaultDialTimeout, "TCP connect timeout")
	flagSet.DurationVar(&writeTimeout, "write-timeout", 2*time.Second, "deadline for each command write")
	flagSet.StringVar(&logFile, "log-file", "", "append diagnostics to this file")
	flagSet.StringVar(&opts.replayPath, "replay", "", "play back telemetry from a pcap file instead of connecting")
	flagSet.IntVar(&opts.replayPort, "replay-port", telemetry.Port, "UDP destination port to extract from the capture")
	flagSet.Float64Var(&opts.replaySpeed, "replay-speed", 1, "replay speed multiplier")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if showVersion {
		fmt.Println(version.String("sonar-console"))
		return nil, errVersion
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.replaySpeed <= 0 {
		return nil, fmt.Errorf("--replay-speed must be positive, got %v", opts.replaySpeed)
	}

	cfg := &config.ConsoleConfig{}
	if configPath != "" {
		loaded, err := config.LoadConsoleConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flagSet.Changed("address") {
		cfg.Address = &address
	}
	if flagSet.Changed("telemetry-port") {
		cfg.TelemetryPort = &telemetryPort
	}
	if flagSet.Changed("connect-timeout") {
		s := connectTimeout.String()
		cfg.ConnectTimeout = &s
	}
	if flagSet.Changed("write-timeout") {
		s := writeTimeout.String()
		cfg.WriteTimeout = &s
	}
	if flagSet.Changed("log-file") {
		cfg.LogFile = &logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	opts.cfg = cfg
	return opts, nil
}

func runLive(cfg *config.ConsoleConfig) error {
	receiver, err := telemetry.ListenReceiver(cfg.GetTelemetryPort())
	if err != nil {
		return err
	}
	defer receiver.Close()
	log.Printf("telemetry on %s", receiver.LocalAddr())

	machine := connection.NewMachine(connection.Config{
		DialTimeout:  cfg.GetConnectTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	})
	d := dispatcher.New(machine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	model := console.NewModel(d, receiver, console.Options{
		Address:       cfg.GetAddress(),
		FrameInterval: cfg.GetFrameInterval(),
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()

	// Stopping the worker closes any link it still holds.
	cancel()
	if werr := <-done; werr != nil {
		log.Printf("dispatcher: %v", werr)
	}
	if receiver.Malformed() > 0 {
		log.Printf("discarded %d malformed telemetry datagrams", receiver.Malformed())
	}
	return err
}

func runReplay(opts *options) error {
	f, err := os.Open(opts.replayPath)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	frames, err := telemetry.ReadCapture(f, opts.replayPort)
	f.Close()
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no telemetry to port %d in %s", opts.replayPort, opts.replayPath)
	}

	source := console.NewReplaySource(frames, console.ReplayOptions{Speed: opts.replaySpeed})
	model := console.NewModel(nil, source, console.Options{
		Replay:        true,
		FrameInterval: opts.cfg.GetFrameInterval(),
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
