// Command pipe runs a telemetry pipeline: one configured input source,
// a decoder chain and a set of output sinks, selected and tuned through
// an INI config file and -O command line overrides.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pipe "github.com/Osman-OO/pipe"
	"github.com/Osman-OO/pipe/internal/builtin"
	"github.com/Osman-OO/pipe/log"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {
	pf := pflag.NewFlagSet(`pipe`, pflag.ExitOnError)
	cfgFile := pf.StringP("config", "c", "", "Path to INI config file.")
	verbose := pf.BoolP("verbose", "v", false, "Log to stderr as well as the log file.")
	debug := pf.BoolP("debug", "d", false, "Enable debug logging.")
	overrides := pf.StringArrayP("opt", "O", nil, "Config override, section.key=value. Repeatable.")
	pf.Parse(os.Args[1:])

	cfg, err := pipe.LoadConfig(*cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		return 1
	}
	for _, err := range cfg.ApplyOverrides(*overrides) {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		return 1
	}

	mainSec := cfg.Section(`main`)
	level := mainSec.String(`loglevel`, `info`)
	if *debug {
		level = `debug`
	}
	l := log.New(log.Config{
		Level:   level,
		Path:    mainSec.String(`logfile`, ``),
		Verbose: *verbose,
	})

	reg, err := builtin.Registry()
	if err != nil {
		l.Errorf("registering plugins: %v", err)
		return 1
	}
	p, err := pipe.Build(cfg, reg, l)
	if err != nil {
		l.Errorf("building pipeline: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		l.Infof("received %s, shutting down", sig)
		cancel()
	}()

	if err := p.Run(ctx); err != nil {
		l.Errorf("pipeline failed: %v", err)
		return 1
	}
	return 0
}
