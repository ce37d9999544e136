package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "manage the configuration file",
	Subcommands: cli.Commands{
		&configShowCmd,
		&configInitCmd,
	},
}

var configShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		enc := yaml.NewEncoder(console.Writer())
		defer enc.Close()
		err = enc.Encode(cfg)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var configInitCmd = cli.Command{
	Name:  "init",
	Usage: "write the effective configuration to the config file",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite without asking"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		path := c.String("config")
		_, err = os.Stat(path)
		if err == nil && !c.Bool("force") {
			answer, err := console.YesOrNo("overwrite " + path + "?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.Warnf("config left untouched")
				return nil
			}
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return console.Exit(1, "could not stat %s: %s", path, console.Red(err))
		}
		err = cfg.Save(path)
		if err != nil {
			return console.Exit(1, "could not save config: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "config written to %s", console.White(path))
		return nil
	},
}
