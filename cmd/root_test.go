package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortFlagSurface(t *testing.T) {
	shorthands := map[string]string{
		"bytes-per-flow":     "b",
		"console":            "c",
		"debug-level":        "d",
		"max-fds":            "f",
		"interface":          "i",
		"no-promiscuous":     "p",
		"read":               "r",
		"strip-nonprintable": "s",
		"verbose":            "v",
		"print-time":         "t",
		"print-datetime":     "x",
		"strip-eol":          "o",
	}
	for name, short := range shorthands {
		f := rootCmd.Flags().Lookup(name)
		require.NotNil(t, f, "flag %s not registered", name)
		assert.Equal(t, short, f.Shorthand, "flag %s", name)
	}
}

func TestDefaultDebugLevel(t *testing.T) {
	f := rootCmd.Flags().Lookup("debug-level")
	require.NotNil(t, f)
	assert.Equal(t, "1", f.DefValue)
}
