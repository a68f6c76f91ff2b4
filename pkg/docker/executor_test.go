package docker

import (
	"bytes"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"
)

func TestSplitDockerLogsSeparatesStreams(t *testing.T) {
	var muxed bytes.Buffer
	_, err := stdcopy.NewStdWriter(&muxed, stdcopy.Stdout).Write([]byte("hello\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&muxed, stdcopy.Stderr).Write([]byte("oops\n"))
	require.NoError(t, err)

	stdout, stderr, err := splitDockerLogs(&muxed)
	require.NoError(t, err)
	require.Equal(t, "hello\n", stdout)
	require.Equal(t, "oops\n", stderr)
}

func TestHostConfigAppliesDefaults(t *testing.T) {
	executor := &DockerExecutor{cfg: Config{MemoryLimitMB: 128, CPUShares: 256}}

	host := executor.hostConfig(ExecutionRequest{})
	require.Equal(t, int64(128*1024*1024), host.Resources.Memory)
	require.Equal(t, int64(256), host.Resources.CPUShares)
	require.True(t, host.ReadonlyRootfs)
	require.Equal(t, "none", string(host.NetworkMode))
	require.Contains(t, host.Tmpfs, "/tmp")

	host = executor.hostConfig(ExecutionRequest{MemoryLimitMB: 64, CPUShares: 512})
	require.Equal(t, int64(64*1024*1024), host.Resources.Memory)
	require.Equal(t, int64(512), host.Resources.CPUShares)
}
