// diffbot-remote is the operator console: it drives the robot over its
// serial link, interactively or from a script.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"diffbot/host/console"
	"diffbot/host/mcu"
	"diffbot/host/serial"
	"diffbot/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud    = flag.Int("baud", 9600, "Baud rate")
	script  = flag.String("script", "", "Run commands from a file instead of the interactive shell")
	stopOut = flag.Bool("stop-on-exit", true, "Trip the emergency stop when the console exits")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Error(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run() error {
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	glog.Infof("diffbot-remote %s connecting to %s at %d baud", protocol.Version, cfg.Device, cfg.Baud)

	link, err := mcu.ConnectWithConfig(cfg)
	if err != nil {
		return err
	}
	defer link.Close()
	if *stopOut {
		defer func() {
			if err := link.Stop(); err != nil {
				glog.Errorf("stop on exit: %v", err)
			}
		}()
	}

	con := console.New(link)
	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			return err
		}
		defer f.Close()
		return con.RunScript(f)
	}
	return con.Run(flag.Args()...)
}
