package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tsl2561/adapter"
	"github.com/mklimuk/tsl2561/cmd/tsl2561/console"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "inspect attached USB bridges",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list HID devices",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)
		w := tabwriter.NewWriter(console.Writer(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")
		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		return w.Flush()
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list attached MCP2221 bridges",
	Action: func(c *cli.Context) error {
		printBridges(adapter.Devices())
		return nil
	},
}

func printBridges(devices []hid.DeviceInfo) {
	if len(devices) == 0 {
		console.PInfof(console.PictoStop, "no MCP2221 bridge attached")
		return
	}
	console.PInfof(console.PictoChip, "%d MCP2221 bridge(s) attached", len(devices))
	w := tabwriter.NewWriter(console.Writer(), 24, 0, 1, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\tVENDOR\tPRODUCT\tSERIAL\tPATH\n")
	for i, dev := range devices {
		_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\t%s\n", i, dev.VendorID, dev.ProductID, dev.Serial, dev.Path)
	}
	_ = w.Flush()
}
