// Package builtin registers every plugin shipped with pipe.
package builtin

import (
	"github.com/Osman-OO/pipe/plugin"
	"github.com/Osman-OO/pipe/plugin/datafile"
	"github.com/Osman-OO/pipe/plugin/fileread"
	"github.com/Osman-OO/pipe/plugin/hexlify"
	"github.com/Osman-OO/pipe/plugin/inverter"
	"github.com/Osman-OO/pipe/plugin/jsonpath"
	"github.com/Osman-OO/pipe/plugin/kafka"
	"github.com/Osman-OO/pipe/plugin/listen"
	"github.com/Osman-OO/pipe/plugin/loki"
	"github.com/Osman-OO/pipe/plugin/noop"
	"github.com/Osman-OO/pipe/plugin/rabbitmq"
	"github.com/Osman-OO/pipe/plugin/sniffer"
	"github.com/Osman-OO/pipe/plugin/stdout"
	"github.com/Osman-OO/pipe/plugin/tshark"
)

// Registry returns a registry with all builtin plugins registered.
func Registry() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	registrations := []func(*plugin.Registry) error{
		fileread.Register,
		listen.Register,
		sniffer.Register,
		tshark.Register,
		kafka.Register,
		noop.Register,
		hexlify.Register,
		jsonpath.Register,
		inverter.Register,
		stdout.Register,
		datafile.Register,
		rabbitmq.Register,
		loki.Register,
	}
	for _, register := range registrations {
		if err := register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
