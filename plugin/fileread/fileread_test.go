package fileread

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), `input.txt`)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRequiresFilename(t *testing.T) {
	_, err := New(plugin.Options{}, log.NewNoop())
	assert.ErrorIs(t, err, plugin.ErrInvalidOption)
}

func TestReadsLinesInOrder(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\n")
	p, err := New(plugin.Options{`filename`: path}, log.NewNoop())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	in := p.(plugin.Input)

	var got []string
	err = in.Run(context.Background(), func(stream string, raw []byte) {
		assert.Equal(t, path, stream)
		got = append(got, string(raw))
	})
	require.NoError(t, err)
	require.NoError(t, in.Stop())
	assert.Equal(t, []string{`one`, `two`, `three`}, got)
}

func TestSkipsEmptyLines(t *testing.T) {
	path := writeFile(t, "one\n\n\ntwo\n")
	p, err := New(plugin.Options{`filename`: path}, log.NewNoop())
	require.NoError(t, err)
	in := p.(plugin.Input)

	var got []string
	require.NoError(t, in.Run(context.Background(), func(_ string, raw []byte) {
		got = append(got, string(raw))
	}))
	assert.Equal(t, []string{`one`, `two`}, got)
}

func TestUnhexlify(t *testing.T) {
	path := writeFile(t, "68656c6c6f\nnot-hex\n776f726c64\n")
	p, err := New(plugin.Options{`filename`: path, `unhexlify`: `yes`}, log.NewNoop())
	require.NoError(t, err)
	in := p.(plugin.Input)

	var got []string
	require.NoError(t, in.Run(context.Background(), func(_ string, raw []byte) {
		got = append(got, string(raw))
	}))
	// The malformed hex line is skipped, not fatal.
	assert.Equal(t, []string{`hello`, `world`}, got)
}

func TestStartFailsOnMissingFile(t *testing.T) {
	p, err := New(plugin.Options{`filename`: `/does/not/exist`}, log.NewNoop())
	require.NoError(t, err)
	assert.Error(t, p.Start())
}
