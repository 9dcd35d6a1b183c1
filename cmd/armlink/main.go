package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config   string `short:"c" long:"config" description:"Configuration file (default: armlink.json)"`
	LogLevel string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`

	Setup SetupCommand `command:"setup" description:"Assign ports to the base and forearm arms"`
	Run   RunCommand   `command:"run" alias:"play" description:"Play a pose program on both arms"`
	Send  SendCommand  `command:"send" description:"Send one command to one arm and wait for the reply"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armlink - host control for a paired base/forearm arm"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
