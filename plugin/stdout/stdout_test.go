package stdout

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutput(t *testing.T, opts plugin.Options) (*Stdout, *bytes.Buffer) {
	t.Helper()
	p, err := New(opts, log.NewNoop())
	require.NoError(t, err)
	out := p.(*Stdout)
	buf := &bytes.Buffer{}
	out.w = buf
	return out, buf
}

func TestEmitWritesJSONLine(t *testing.T) {
	out, buf := newOutput(t, nil)
	require.NoError(t, out.Emit(plugin.Record{`data`: `hello`, `n`: int64(3)}))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, `hello`, got[`data`])
	assert.Equal(t, float64(3), got[`n`])
}

func TestRawIsSilentByDefault(t *testing.T) {
	out, buf := newOutput(t, nil)
	out.HandleRaw([]byte{0xDE, 0xAD})
	assert.Empty(t, buf.String())
}

func TestRawHexlified(t *testing.T) {
	out, buf := newOutput(t, plugin.Options{`print_raw`: `yes`, `hexlify_raw`: `yes`})
	out.HandleRaw([]byte{0xDE, 0xAD})
	assert.Equal(t, "dead\n", buf.String())
}

func TestRawVerbatim(t *testing.T) {
	out, buf := newOutput(t, plugin.Options{`print_raw`: `yes`, `hexlify_raw`: `no`})
	out.HandleRaw([]byte(`plain`))
	assert.Equal(t, "plain\n", buf.String())
}
