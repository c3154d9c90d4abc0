package cgroup

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m-contain/libcontainer/config"
)

func TestCpuAcctStats(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuAcct)

	h, err := f.Create("/box", nil)
	require.NoError(t, err)
	dir := path.Join(env.mounts[config.ResourceCpuAcct], "box")

	require.NoError(t, os.WriteFile(path.Join(dir, cpuacctUsageFile), []byte("999\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, cpuacctStatFile), []byte("user 70\nsystem 30\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, cpuacctPerCpuFile), []byte("400 599\n"), 0644))

	var stats config.ContainerStats
	require.NoError(t, h.Stats(config.StatsSummary, &stats))
	require.NotNil(t, stats.CpuAcct)
	assert.Equal(t, uint64(999), stats.CpuAcct.Usage)
	assert.Equal(t, uint64(70), stats.CpuAcct.User)
	assert.Equal(t, uint64(30), stats.CpuAcct.System)
	assert.Nil(t, stats.CpuAcct.PerCpu)

	stats = config.ContainerStats{}
	require.NoError(t, h.Stats(config.StatsFull, &stats))
	assert.Equal(t, []uint64{400, 599}, stats.CpuAcct.PerCpu)
}

func TestCpuAcctStatsMissingPerCpu(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuAcct)

	h, err := f.Create("/box", nil)
	require.NoError(t, err)
	dir := path.Join(env.mounts[config.ResourceCpuAcct], "box")
	require.NoError(t, os.Remove(path.Join(dir, cpuacctPerCpuFile)))

	var stats config.ContainerStats
	require.NoError(t, h.Stats(config.StatsFull, &stats))
	assert.Nil(t, stats.CpuAcct.PerCpu)
}

func TestCpuAcctGetMirrorsBatchPlacement(t *testing.T) {
	env := newTestEnv(t)

	// CPU 工厂把 best-effort 容器镜像到两个层级的 batch 前缀下
	cpuF := env.factory(t, config.ResourceCpu)
	_, err := cpuF.Create("/alloc", &config.ContainerSpec{Cpu: &config.CpuSpec{
		Latency: latencyp(config.LatencyBestEffort),
	}})
	require.NoError(t, err)

	acctF := env.factory(t, config.ResourceCpuAcct)
	h, err := acctF.Get("/alloc")
	require.NoError(t, err)
	assert.Equal(t, "/alloc", h.ContainerName())
}

func TestCpuAcctUpdateIsNoop(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuAcct)

	h, err := f.Create("/box", nil)
	require.NoError(t, err)

	// 没有可写的旋钮，任何策略下都是成功的无操作
	require.NoError(t, h.Update(&config.ContainerSpec{}, config.UpdateReplace))

	var spec config.ContainerSpec
	require.NoError(t, h.Spec(&spec))
	assert.Nil(t, spec.Cpu)
}
