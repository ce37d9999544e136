package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
	"github.com/mklimuk/tsl2561/protocol"
)

var wordFlag = &cli.BoolFlag{
	Name:    "word",
	Aliases: []string{"w"},
	Usage:   "transfer two bytes instead of one",
}

var regCmd = cli.Command{
	Name:  "reg",
	Usage: "access sensor registers",
	Subcommands: []*cli.Command{
		&regReadCmd,
		&regWriteCmd,
	},
}

var regReadCmd = cli.Command{
	Name:      "read",
	Aliases:   []string{"rd"},
	ArgsUsage: "<register>",
	Flags:     []cli.Flag{wordFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		reg, err := parseRegister(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		val, err := s.ioctl(c.Context, protocol.Read(reg, widthOf(c.Bool("word"))))
		if err != nil {
			return console.Exit(1, "could not read register: %s", console.Red(err))
		}
		console.Printf("%s (%#02x): %s\n", console.Cyan(protocol.RegisterName(reg)), reg, console.White(fmt.Sprintf("%#x", val)))
		return nil
	}),
}

var regWriteCmd = cli.Command{
	Name:      "write",
	Aliases:   []string{"wr"},
	ArgsUsage: "<register> <value>",
	Flags:     []cli.Flag{wordFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		reg, err := parseRegister(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		val, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		_, err = s.ioctl(c.Context, protocol.Write(reg, widthOf(c.Bool("word")), val))
		if err != nil {
			return console.Exit(1, "could not write register: %s", console.Red(err))
		}
		console.Printf("%s (%#02x) <- %s\n", console.Cyan(protocol.RegisterName(reg)), reg, console.White(fmt.Sprintf("%#x", val)))
		return nil
	}),
}

var idCmd = cli.Command{
	Name:  "id",
	Usage: "read the ID register",
	Action: withSession(func(c *cli.Context, s *session) error {
		val, err := s.ioctl(c.Context, protocol.Read(protocol.RegID, protocol.WidthByte))
		if err != nil {
			return console.Exit(1, "could not read ID: %s", console.Red(err))
		}
		part, rev := protocol.PartNumber(byte(val))
		console.PInfof(console.PictoBulb, "TSL ID %s (part %d, revision %d)", console.White(fmt.Sprintf("%#02x", val)), part, rev)
		return nil
	}),
}

func widthOf(word bool) protocol.Width {
	if word {
		return protocol.WidthWord
	}
	return protocol.WidthByte
}

// parseRegister accepts a datasheet name (case insensitive) or a number.
func parseRegister(arg string) (byte, error) {
	if reg, ok := protocol.LookupRegister(strings.ToUpper(arg)); ok {
		return reg, nil
	}
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register %q", arg)
	}
	if byte(v)&protocol.CommandBit != 0 {
		return 0, fmt.Errorf("invalid register %q: %w", arg, protocol.ErrRegisterRange)
	}
	return byte(v), nil
}

func parseByte(arg string) (byte, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", arg)
	}
	return byte(v), nil
}
