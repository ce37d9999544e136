package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
	"github.com/mklimuk/tsl2561/protocol"
)

var ioctlCmd = cli.Command{
	Name:      "ioctl",
	Usage:     "issue a raw control call",
	ArgsUsage: "<cmd> <arg>",
	Action: withSession(func(c *cli.Context, s *session) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		cmd, err := strconv.ParseUint(c.Args().Get(0), 0, 32)
		if err != nil {
			return console.Exit(1, "invalid control code %q", c.Args().Get(0))
		}
		arg, err := strconv.ParseUint(c.Args().Get(1), 0, 64)
		if err != nil {
			return console.Exit(1, "invalid argument %q", c.Args().Get(1))
		}
		res, err := s.file.Ioctl(c.Context, uint32(cmd), arg)
		console.Printf("%d (%#x)\n", res, res)
		if err != nil {
			return console.Exit(1, "control call failed: %s", console.Red(err))
		}
		return nil
	}),
}

var encodeCmd = cli.Command{
	Name:  "encode",
	Usage: "print the command word for a register access",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "op", Value: "read", Usage: "read or write"},
		&cli.StringFlag{Name: "reg", Required: true, Usage: "register name or address"},
		&cli.StringFlag{Name: "val", Value: "0", Usage: "value to write"},
		wordFlag,
	},
	Action: func(c *cli.Context) error {
		cmd, err := commandFromFlags(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		console.Printf("%#x\n", cmd.Encode())
		return nil
	},
}

var decodeCmd = cli.Command{
	Name:      "decode",
	Usage:     "explain a command word",
	ArgsUsage: "<word>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		word, err := strconv.ParseUint(c.Args().Get(0), 0, 64)
		if err != nil {
			return console.Exit(1, "invalid word %q", c.Args().Get(0))
		}
		cmd, err := protocol.Decode(word)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		enc := yaml.NewEncoder(console.Writer())
		defer enc.Close()
		err = enc.Encode(describe(cmd))
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

type commandView struct {
	Op       string `yaml:"op"`
	Width    string `yaml:"width"`
	Register string `yaml:"register"`
	Pointer  string `yaml:"pointer"`
	Value    string `yaml:"value,omitempty"`
}

func describe(cmd protocol.Command) commandView {
	v := commandView{
		Op:       cmd.Op.String(),
		Width:    cmd.Width.String(),
		Register: protocol.RegisterName(cmd.Register),
		Pointer:  fmt.Sprintf("%#02x", cmd.Pointer()),
	}
	if cmd.Op == protocol.OpWrite {
		v.Value = fmt.Sprintf("%#02x", cmd.Value)
	}
	return v
}

func commandFromFlags(c *cli.Context) (protocol.Command, error) {
	reg, err := parseRegister(c.String("reg"))
	if err != nil {
		return protocol.Command{}, err
	}
	width := widthOf(c.Bool("word"))
	switch c.String("op") {
	case "read", "r":
		return protocol.Read(reg, width), nil
	case "write", "w":
		val, err := parseByte(c.String("val"))
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Write(reg, width, val), nil
	}
	return protocol.Command{}, fmt.Errorf("%w: %q", protocol.ErrUnknownOperation, c.String("op"))
}
