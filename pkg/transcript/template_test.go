package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplate(t *testing.T) {
	tpl := DefaultTemplate()

	assert.Equal(t, "[INST] ", tpl.Open)
	assert.Equal(t, " [/INST]", tpl.Close)
	assert.Contains(t, tpl.Preamble, "<<SYS>>")
	assert.Contains(t, tpl.Preamble, "Always answer as short as possible")
}

func TestLoadTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	data := `preamble: "<|system|>be terse<|end|> "
open: "<|user|>"
close: "<|end|>"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tpl, err := LoadTemplateFile(path)
	require.NoError(t, err)

	assert.Equal(t, "<|system|>be terse<|end|> ", tpl.Preamble)
	assert.Equal(t, "<|user|>", tpl.Open)
	assert.Equal(t, "<|end|>", tpl.Close)
}

func TestLoadTemplateFileKeepsDefaultsForAbsentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`preamble: "custom "`), 0o644))

	tpl, err := LoadTemplateFile(path)
	require.NoError(t, err)

	assert.Equal(t, "custom ", tpl.Preamble)
	assert.Equal(t, DefaultTemplate().Open, tpl.Open)
	assert.Equal(t, DefaultTemplate().Close, tpl.Close)
}

func TestLoadTemplateFileRejectsBlankMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`open: "  "`), 0o644))

	_, err := LoadTemplateFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}

func TestLoadTemplateFileMissing(t *testing.T) {
	_, err := LoadTemplateFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadTemplateFileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte("open: [unterminated"), 0o644))

	_, err := LoadTemplateFile(path)
	require.Error(t, err)
}
