// Command plyc compiles a tracing script, attaches its probes to the
// running kernel, and prints its printf/trace output and aggregated
// maps until stopped. Flags are rebuilt on spf13/cobra: -A/-d/-D/-t
// match the familiar ascii/debug/dump/timeout switches, plus a -c flag
// that traces for the lifetime of a launched subject command instead
// of a fixed timeout or a bare signal wait, and an -o flag to redirect
// output to a file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ply/internal/driver"
	"ply/internal/output"
)

var (
	flagAscii   bool
	flagDebug   bool
	flagDump    bool
	flagStrict  bool
	flagTimeout int
	flagOutput  string
	flagCommand string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plyc { scriptfile | 'program text' }",
		Short:         "compile and run a dynamic tracing script",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	f := cmd.Flags()
	f.BoolVarP(&flagAscii, "ascii", "A", false, "limit output to ASCII, no Unicode")
	f.BoolVarP(&flagDebug, "debug", "d", false, "include compilation debug info")
	f.BoolVarP(&flagDump, "dump", "D", false, "dump BPF, and do not run")
	f.BoolVar(&flagStrict, "strict", false, "abort on the first probe that fails to compile or attach")
	f.IntVarP(&flagTimeout, "timeout", "t", 0, "run duration in seconds (0 = until signalled)")
	f.StringVarP(&flagOutput, "output", "o", "", "write drained output to this file instead of stdout")
	f.StringVarP(&flagCommand, "command", "c", "", "run this command and stop tracing when it exits")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()
	if flagDebug {
		log.SetLevel(logrus.DebugLevel)
	}

	src, err := loadSource(args[0])
	if err != nil {
		return err
	}

	settings := driver.Settings{
		Debug:   flagDebug,
		Ascii:   flagAscii,
		Strict:  flagStrict,
		Timeout: time.Duration(flagTimeout) * time.Second,
	}
	if flagDump {
		settings.DumpOnly = true
	}

	session, err := driver.Compile(src, settings, log)
	if err != nil {
		return fmt.Errorf("plyc: %w", err)
	}
	if flagDump {
		return nil
	}
	defer session.Close()

	for _, f := range session.Failures {
		log.Warn(f.String())
	}

	out := os.Stdout
	if flagOutput != "" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return fmt.Errorf("plyc: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if settings.Timeout > 0 {
		go func() {
			select {
			case <-time.After(settings.Timeout):
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if flagCommand != "" {
		subject := exec.CommandContext(ctx, "sh", "-c", flagCommand)
		subject.Stdout = os.Stderr
		subject.Stderr = os.Stderr
		if err := subject.Start(); err != nil {
			return fmt.Errorf("plyc: start command: %w", err)
		}
		go func() {
			if err := subject.Wait(); err != nil {
				log.WithError(err).Debug("plyc: command exited")
			}
			cancel()
		}()
	}

	maps, dyns := session.Maps()
	drainer := output.New(maps, dyns, flagAscii, log, out)

	fmt.Fprintln(os.Stderr, "probes active")
	if err := drainer.Run(ctx, driver.DefaultDumpInterval); err != nil {
		return fmt.Errorf("plyc: %w", err)
	}
	fmt.Fprintln(os.Stderr, "de-activating probes")
	return nil
}

// loadSource reads arg as a script file; if no such file exists, arg
// is treated as the program's literal DSL text instead — the flag
// letter -c is reused for a different, more broadly useful job (see
// the -c flag above).
func loadSource(arg string) (string, error) {
	b, err := os.ReadFile(arg)
	if err != nil {
		if os.IsNotExist(err) {
			return arg, nil
		}
		return "", fmt.Errorf("plyc: unable to read script: %w", err)
	}
	return string(b), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
