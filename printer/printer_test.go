package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func withDebugLevel(t *testing.T, level int) {
	t.Helper()
	old := viper.GetInt("debug-level")
	viper.Set("debug-level", level)
	t.Cleanup(func() { viper.Set("debug-level", old) })
}

func TestVerbosityGate(t *testing.T) {
	withDebugLevel(t, 5)

	var buf bytes.Buffer
	p := NewP(&buf)

	p.V(5).Debugf("visible\n")
	p.V(6).Debugf("hidden\n")

	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.NotContains(t, out, "hidden")
}

func TestDebugSuppressedAtLevelZero(t *testing.T) {
	withDebugLevel(t, 0)

	var buf bytes.Buffer
	p := NewP(&buf)

	p.Debugf("hidden\n")
	p.Debugln("hidden too")
	assert.Empty(t, buf.String())
}

func TestErrorAlwaysEmitted(t *testing.T) {
	withDebugLevel(t, 0)

	var buf bytes.Buffer
	p := NewP(&buf)

	p.Errorf("boom: %d\n", 7)
	assert.Contains(t, buf.String(), "boom: 7")
}

func TestPrefix(t *testing.T) {
	withDebugLevel(t, 1)

	oldPrefix := prefix
	t.Cleanup(func() { prefix = oldPrefix })
	Init("tcptap")

	var buf bytes.Buffer
	p := NewP(&buf)
	p.Infof("hello\n")

	assert.True(t, strings.HasPrefix(buf.String(), "tcptap["), buf.String())
}
