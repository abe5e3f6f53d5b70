package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/chatbridge/internal/config"
	"github.com/kazz187/chatbridge/internal/daemon"
	"github.com/kazz187/chatbridge/pkg/clog"
)

var version = "dev"

var (
	app = kingpin.New("chatbridge", "Bridge between chat platforms and terminal coding-agent sessions")

	serveCmd     = app.Command("serve", "Start the bridge daemon")
	serveNoColor = serveCmd.Flag("no-color", "Disable colored log output").Bool()

	versionCmd = app.Command("version", "Print the version")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case serveCmd.FullCommand():
		if err := runServe(*serveNoColor); err != nil {
			fmt.Fprintf(os.Stderr, "chatbridge: %v\n", err)
			os.Exit(1)
		}
	case versionCmd.FullCommand():
		fmt.Println(version)
	}
}

func runServe(noColor bool) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	handler := clog.NewTextHandler(os.Stderr,
		clog.WithColor(!noColor),
		clog.WithLevel(env.SlogLevel()),
	)
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	d, err := daemon.New(ctx, env)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
