// Cryptoprice CLI
// This application retrieves historical daily settlement prices for
// cryptocurrencies from CoinGecko and exports them to CSV, for one coin or
// sequentially for a list of coins.
//
// Usage:
//
//	cryptoprice fetch bitcoin --from 2024-01-01 --to 2024-01-31
//	cryptoprice batch --coins bitcoin,ethereum --from 2024-01-01 --to 2024-01-31 -o out
//	cryptoprice history bitcoin --date 2024-01-15
//	cryptoprice coins
//	cryptoprice ping
//
// For detailed help on any command, use: cryptoprice <command> --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomx220052/cryptoprice/internal/collector"
)

// CLI version information
const (
	Version    = "1.0.0"
	AppName    = "cryptoprice"
	ConfigFile = "cryptoprice.json"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
	ExitInterrupt     = 130
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// main is the entry point for the CLI application
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ic, stop := notifyInterrupt(context.Background())
	defer stop()

	root, a := newRootCommand(ic)
	root.SetArgs(args)

	err := root.ExecuteContext(ic.ctx)
	if cerr := a.close(context.Background()); cerr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", cerr)
	}
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && ee.code != ExitInterrupt {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	// cobra argument and flag errors
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitUsageError
}

// interruptContext pairs a context with the cooperative cancellation flag.
// The first SIGINT/SIGTERM sets the flag so the running fetch stops at its
// next decision point; a second one cancels the context.
type interruptContext struct {
	ctx  context.Context
	flag *collector.CancelFlag
}

func notifyInterrupt(parent context.Context) (*interruptContext, func()) {
	ctx, cancel := context.WithCancel(parent)
	flag := &collector.CancelFlag{}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-signals:
				if flag.Cancelled() {
					cancel()
					return
				}
				fmt.Fprintln(os.Stderr, "Interrupt received, stopping after the current request (press Ctrl+C again to abort)")
				flag.Cancel()
			case <-ctx.Done():
				return
			}
		}
	}()

	return &interruptContext{ctx: ctx, flag: flag}, func() {
		signal.Stop(signals)
		cancel()
	}
}
