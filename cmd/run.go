package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/meshwire/linkctl/eventbus"
	"github.com/meshwire/linkctl/linkctl"
	"github.com/meshwire/linkctl/meshswitch/switchmock"
	"github.com/meshwire/linkctl/session/sessionmock"
	"github.com/meshwire/linkctl/state"
	"github.com/meshwire/linkctl/transport/udp"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the peer link controller",
	GroupID: "run",
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath := cmd.Flag("log").Value.String()
		if err := runController(configPath, logPath, verbose); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("verbose", "v", false, "debug-level logging")
	runCmd.Flags().String("log", "", "optional line-delimited JSON log file, fanned out alongside the console")
}

func buildLogger(id string, verbose bool, logPath string) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			CustomPrefix: id,
			TimeFormat:   "15:04:05",
		}),
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// runController loads cfg, builds a controller, binds the reference UDP
// transport to every configured link, and blocks until SIGINT/SIGTERM.
//
// session.Factory and meshswitch.Switch/Pinger are out-of-scope external
// collaborators (spec.md §1) with no production implementation in this
// repository; sessionmock/switchmock stand in as the only concrete
// implementations available, exactly as they do in the test suite, until
// a real Noise engine and packet switch are wired in.
func runController(configPath, logPath string, verbose bool) error {
	cfg, err := state.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg.Id, verbose, logPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	env := &state.Env{Context: ctx, Cancel: cancel, Log: logger}

	ctl, err := linkctl.NewController(linkctl.Options{
		Env:             env,
		Config:          cfg,
		Factory:         sessionmock.NewFactory(),
		Switch:          switchmock.NewSwitch(0),
		Pinger:          switchmock.NewPinger(),
		Bus:             eventbus.NewInProcess(8),
		ProtocolVersion: 1,
	})
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	// Start the event loop in the background first: BindTransport is an
	// admin call like any other (spec.md §5), so it has to run against a
	// loop that is already consuming its dispatch channel, the same way a
	// separate admin process would reach a controller that's already up.
	go ctl.Start()

	sock := socketPath(cfg)
	if err := serveIPC(ctl, sock, logger); err != nil {
		return err
	}
	logger.Info("admin ipc listening", "socket", sock)

	for ifNum, lc := range cfg.Links {
		bind, err := netip.ParseAddrPort(lc.Bind)
		if err != nil {
			return fmt.Errorf("link %q: parse bind address: %w", lc.Name, err)
		}
		var broadcast netip.AddrPort
		if lc.Broadcast != "" {
			broadcast, err = netip.ParseAddrPort(lc.Broadcast)
			if err != nil {
				return fmt.Errorf("link %q: parse broadcast address: %w", lc.Name, err)
			}
		}
		link, err := udp.Listen(ctl, ifNum, bind, broadcast, logger.With("link", lc.Name))
		if err != nil {
			return fmt.Errorf("link %q: listen: %w", lc.Name, err)
		}
		if err := ctl.BindTransport(ifNum, link); err != nil {
			return fmt.Errorf("link %q: bind transport: %w", lc.Name, err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel(context.Canceled)
	}()

	logger.Info("peer link controller started", "links", len(cfg.Links))
	<-ctx.Done()
	return nil
}
