package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
	"github.com/mklimuk/tsl2561/config"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := cli.NewApp()
	app.Name = "tsl2561"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "TSL2561 register access over I2C"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "configuration file",
			Value: config.DefaultPath(),
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: generic, rdwr, nanopi, mcp2221 or sim",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "i2c-dev node used by the generic and rdwr adapters",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "bus number used by the nanopi adapter",
			Value: -1,
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "sensor address (0x29, 0x39 or 0x49)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "tsl",
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	// exit codes are returned from run instead of terminating the process
	app.ExitErrHandler = func(ctx *cli.Context, err error) {}
	app.Commands = cli.Commands{
		&regCmd,
		&idCmd,
		&ioctlCmd,
		&encodeCmd,
		&decodeCmd,
		&shellCmd,
		&usbCmd,
		&mcp2221Cmd,
		&configCmd,
	}
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			console.Errorf("%v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}
