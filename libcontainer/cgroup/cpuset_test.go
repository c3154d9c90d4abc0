package cgroup

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m-contain/libcontainer/config"
)

func TestCpusetCreateInheritsMasks(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	// 新建的 cpuset 掩码是空的；规格里缺席的掩码从父目录继承
	_, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{}})
	require.NoError(t, err)

	dir := path.Join(env.mounts[config.ResourceCpuSet], "box")
	assert.Equal(t, "0-3", readFile(t, dir, cpusetCpusFile))
	assert.Equal(t, "0", readFile(t, dir, cpusetMemsFile))
}

func TestCpusetCreateExplicitMasks(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	_, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{
		Cpus: strp("1-2"),
		Mems: strp("0"),
	}})
	require.NoError(t, err)

	dir := path.Join(env.mounts[config.ResourceCpuSet], "box")
	assert.Equal(t, "1-2", readFile(t, dir, cpusetCpusFile))
	assert.Equal(t, "0", readFile(t, dir, cpusetMemsFile))
}

func TestCpusetNestedInheritsFromParent(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	_, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{
		Cpus: strp("1-2"),
	}})
	require.NoError(t, err)

	// 子容器从直接父目录继承，不是从层级根
	_, err = f.Create("/box/sub", &config.ContainerSpec{CpuSet: &config.CpusetSpec{}})
	require.NoError(t, err)

	dir := path.Join(env.mounts[config.ResourceCpuSet], "box/sub")
	assert.Equal(t, "1-2", readFile(t, dir, cpusetCpusFile))
}

func TestCpusetUpdateReplaceWidensToRoot(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	h, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{
		Cpus: strp("1"),
		Mems: strp("0"),
	}})
	require.NoError(t, err)

	// REPLACE 的重置 = 放开到层级根的全量掩码
	require.NoError(t, h.Update(&config.ContainerSpec{CpuSet: &config.CpusetSpec{}}, config.UpdateReplace))

	dir := path.Join(env.mounts[config.ResourceCpuSet], "box")
	assert.Equal(t, "0-3", readFile(t, dir, cpusetCpusFile))
	assert.Equal(t, "0", readFile(t, dir, cpusetMemsFile))
}

func TestCpusetSpec(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	h, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{
		Cpus: strp("0-1"),
		Mems: strp("0"),
	}})
	require.NoError(t, err)

	got, err := specOf(h)
	require.NoError(t, err)
	require.NotNil(t, got.CpuSet)
	assert.Equal(t, "0-1", *got.CpuSet.Cpus)
	assert.Equal(t, "0", *got.CpuSet.Mems)

	// Spec 的输出再 REPLACE 回去，状态必须稳定
	require.NoError(t, h.Update(got, config.UpdateReplace))
	again, err := specOf(h)
	require.NoError(t, err)
	assert.Equal(t, got.CpuSet, again.CpuSet)
}

func TestCpusetStatsIsNoop(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	h, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{}})
	require.NoError(t, err)

	var stats config.ContainerStats
	require.NoError(t, h.Stats(config.StatsFull, &stats))
	assert.Nil(t, stats.Cpu)
	assert.Nil(t, stats.Memory)
}

func TestCpusetInheritToleratesMissingSource(t *testing.T) {
	env := newTestEnv(t)
	f := env.factory(t, config.ResourceCpuSet)

	// 根掩码文件缺失时继承按可选特性放过
	require.NoError(t, os.Remove(path.Join(env.mounts[config.ResourceCpuSet], cpusetCpusFile)))

	_, err := f.Create("/box", &config.ContainerSpec{CpuSet: &config.CpusetSpec{}})
	require.NoError(t, err)
}
