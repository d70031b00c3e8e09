// Command wsdemo is a small chat over WebSockets.
//
//	wsdemo server --addr localhost:8080 --stats-addr localhost:8081
//	wsdemo client --url ws://localhost:8080/
//
// The client sends every "/msg <text>" line of its input as a text message
// and prints what the server broadcasts. Any other line ends the session.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsdemo: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: wsdemo <server|client> [flags]`

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return xerrors.New(usage)
	}

	cmd := args[0]
	fs := pflag.NewFlagSet("wsdemo "+cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.BoolP("verbose", "v", false, "log connection debug events")

	var (
		scfg serverConfig
		ccfg clientConfig
	)
	switch cmd {
	case "server":
		scfg.flags(fs)
	case "client":
		ccfg.flags(fs)
	default:
		return xerrors.Errorf("unknown command %q\n%v", cmd, usage)
	}

	err := fs.Parse(args[1:])
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return xerrors.Errorf("unexpected arguments: %q", fs.Args())
	}

	logger := slog.Make(sloghuman.Sink(stderr))
	if *verbose {
		logger = logger.Leveled(slog.LevelDebug)
	}

	if cmd == "server" {
		return runServer(ctx, logger, scfg)
	}
	return runClient(ctx, logger, ccfg, stdin, stdout)
}
