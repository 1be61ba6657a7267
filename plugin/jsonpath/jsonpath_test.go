package jsonpath

import (
	"testing"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDecoder(t *testing.T, opts plugin.Options) *JSONPath {
	t.Helper()
	p, err := New(opts, log.NewNoop())
	require.NoError(t, err)
	return p.(*JSONPath)
}

func TestRequiresPaths(t *testing.T) {
	_, err := New(plugin.Options{}, log.NewNoop())
	assert.ErrorIs(t, err, plugin.ErrInvalidOption)

	_, err = New(plugin.Options{`paths`: `[not, a, mapping]`}, log.NewNoop())
	assert.ErrorIs(t, err, plugin.ErrInvalidOption)
}

func TestExtractsTypedFields(t *testing.T) {
	dec := newDecoder(t, plugin.Options{
		`paths`: `{power: inverter.acPower, volts: inverter.acVoltage, serial: meta.serial, online: meta.online}`,
	})
	payload := []byte(`{"inverter": {"acPower": 1500, "acVoltage": 229.8}, "meta": {"serial": "SE-1", "online": true}}`)

	units, err := dec.Decode(plugin.NewDataUnit(`test`, payload))
	require.NoError(t, err)
	require.Len(t, units, 1)
	rec := units[0].Fields
	assert.Equal(t, int64(1500), rec[`power`])
	assert.Equal(t, 229.8, rec[`volts`])
	assert.Equal(t, `SE-1`, rec[`serial`])
	assert.Equal(t, int64(1), rec[`online`])
}

func TestMissingPathSkippedByDefault(t *testing.T) {
	dec := newDecoder(t, plugin.Options{`paths`: `{power: acPower, extra: nope}`})
	units, err := dec.Decode(plugin.NewDataUnit(`test`, []byte(`{"acPower": 7}`)))
	require.NoError(t, err)
	rec := units[0].Fields
	assert.Equal(t, int64(7), rec[`power`])
	_, there := rec[`extra`]
	assert.False(t, there)
}

func TestMissingPathFailsInStrictMode(t *testing.T) {
	dec := newDecoder(t, plugin.Options{`paths`: `{extra: nope}`, `strict`: `yes`})
	_, err := dec.Decode(plugin.NewDataUnit(`test`, []byte(`{"acPower": 7}`)))
	assert.Error(t, err)
}

func TestInvalidJSONFailsUnit(t *testing.T) {
	dec := newDecoder(t, plugin.Options{`paths`: `{power: acPower}`})
	_, err := dec.Decode(plugin.NewDataUnit(`test`, []byte(`{broken`)))
	assert.Error(t, err)
}
