package tshark

import (
	"testing"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	p, err := New(plugin.Options{`interface`: `enp0s3`, `filter`: `udp port 53`}, log.NewNoop())
	require.NoError(t, err)
	args := p.(*Tshark).Args()
	assert.Equal(t, []string{`-l`, `-i`, `enp0s3`, `-f`, `udp port 53`, `-T`, `fields`, `-e`, `data`}, args)
}

func TestArgsWithPcap(t *testing.T) {
	p, err := New(plugin.Options{`write_pcap`: `yes`, `pcap_dir`: `/tmp`}, log.NewNoop())
	require.NoError(t, err)
	args := p.(*Tshark).Args()
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, `-w`, args[len(args)-2])
	assert.Contains(t, args[len(args)-1], `/tmp/`)
}

func TestStartFailsOnMissingExecutable(t *testing.T) {
	p, err := New(plugin.Options{`exe`: `/does/not/exist/tshark`}, log.NewNoop())
	require.NoError(t, err)
	assert.Error(t, p.Start())
}
