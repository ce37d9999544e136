package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
	"github.com/mklimuk/tsl2561/protocol"
)

const shellHelp = `commands:
  r <reg> [w]        read a register (w: word)
  w <reg> <val> [w]  write a register (w: word)
  id                 read the ID register
  help               show this help
  quit               leave the shell`

var shellCmd = cli.Command{
	Name:  "shell",
	Usage: "interactive register access",
	Action: withSession(func(c *cli.Context, s *session) error {
		console.Infof("%s at %#02x over %s", s.cfg.Node, s.cfg.Address, s.cfg.Adapter)
		console.Print(shellHelp)
		return console.Shell("tsl2561> ", func(line string) bool {
			out, done := s.exec(c.Context, line)
			if out != "" {
				console.Print(out)
			}
			return done
		})
	}),
}

// exec runs one shell line and returns what to print.
func (s *session) exec(ctx context.Context, line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	word := len(fields) > 1 && fields[len(fields)-1] == "w"
	if word {
		fields = fields[:len(fields)-1]
	}
	switch fields[0] {
	case "quit", "exit", "q":
		return "", true
	case "help", "?":
		return shellHelp, false
	case "id":
		val, err := s.ioctl(ctx, protocol.Read(protocol.RegID, protocol.WidthByte))
		if err != nil {
			return console.Red(err.Error()), false
		}
		return fmt.Sprintf("ID %#02x", val), false
	case "r", "read":
		if len(fields) != 2 {
			return "usage: r <reg> [w]", false
		}
		reg, err := parseRegister(fields[1])
		if err != nil {
			return console.Red(err.Error()), false
		}
		val, err := s.ioctl(ctx, protocol.Read(reg, widthOf(word)))
		if err != nil {
			return console.Red(err.Error()), false
		}
		return fmt.Sprintf("%s = %#x", protocol.RegisterName(reg), val), false
	case "w", "write":
		if len(fields) != 3 {
			return "usage: w <reg> <val> [w]", false
		}
		reg, err := parseRegister(fields[1])
		if err != nil {
			return console.Red(err.Error()), false
		}
		val, err := parseByte(fields[2])
		if err != nil {
			return console.Red(err.Error()), false
		}
		if _, err := s.ioctl(ctx, protocol.Write(reg, widthOf(word), val)); err != nil {
			return console.Red(err.Error()), false
		}
		return console.Green("ok"), false
	}
	return fmt.Sprintf("unknown command %q, try help", fields[0]), false
}
