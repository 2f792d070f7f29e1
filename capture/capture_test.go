package capture

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuildFilterWrapsUserExpression(t *testing.T) {
	assert.Equal(t, "(ip) and (port 80)", buildFilter("port 80", layers.LinkTypeEthernet))
	assert.Equal(t, "(ip) and (host 10.0.0.1 and port 443)",
		buildFilter("host 10.0.0.1 and port 443", layers.LinkTypeEthernet))
}

func TestBuildFilterDefaultsToIP(t *testing.T) {
	assert.Equal(t, "ip", buildFilter("", layers.LinkTypeEthernet))
	assert.Equal(t, "ip", buildFilter("", layers.LinkTypeRaw))
}

func TestCanonicalArchNonEmpty(t *testing.T) {
	arch := canonicalArch()
	assert.NotEmpty(t, arch)
	assert.NotContains(t, arch, "x86_64")
	assert.NotContains(t, arch, "aarch64")
}

func TestMaxDescriptorsHonorsDesired(t *testing.T) {
	var saved unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &saved))
	t.Cleanup(func() { unix.Setrlimit(unix.RLIMIT_NOFILE, &saved) })

	got, err := MaxDescriptors(64)
	require.NoError(t, err)
	assert.Equal(t, 64, got)
}

func TestMaxDescriptorsRaisesToHardLimit(t *testing.T) {
	var saved unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &saved))
	t.Cleanup(func() { unix.Setrlimit(unix.RLIMIT_NOFILE, &saved) })

	got, err := MaxDescriptors(0)
	require.NoError(t, err)
	assert.Greater(t, got, 0)

	var limit unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &limit))
	assert.Equal(t, limit.Max, limit.Cur)
}
