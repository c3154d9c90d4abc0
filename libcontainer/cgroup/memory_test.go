package cgroup

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/config"
)

func createMemoryHandler(t *testing.T, env *testEnv, name string, spec *config.ContainerSpec) (ResourceHandler, string) {
	t.Helper()
	f := env.factory(t, config.ResourceMemory)
	h, err := f.Create(name, spec)
	require.NoError(t, err)
	return h, path.Join(env.mounts[config.ResourceMemory], name)
}

func TestMemoryCreateAppliesSpec(t *testing.T) {
	env := newTestEnv(t)
	_, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{
		Limit:       int64p(100 << 20),
		Reservation: int64p(50 << 20),
	}})

	assert.Equal(t, "104857600", readFile(t, dir, memLimitFile))
	assert.Equal(t, "52428800", readFile(t, dir, memSoftLimitFile))
}

func TestMemoryUpdateDiffLeavesOtherFields(t *testing.T) {
	env := newTestEnv(t)
	h, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{
		Limit: int64p(100),
	}})

	// DIFF 只写出现的字段：上限不动
	require.NoError(t, h.Update(&config.ContainerSpec{Memory: &config.MemorySpec{
		Reservation: int64p(5),
	}}, config.UpdateDiff))
	assert.Equal(t, "100", readFile(t, dir, memLimitFile))
	assert.Equal(t, "5", readFile(t, dir, memSoftLimitFile))
}

func TestMemoryUpdateReplaceResetsAbsent(t *testing.T) {
	env := newTestEnv(t)
	h, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{
		Limit:      int64p(100),
		Swappiness: uint64p(10),
	}})

	// REPLACE 把缺席字段重置为默认
	require.NoError(t, h.Update(&config.ContainerSpec{Memory: &config.MemorySpec{
		Reservation: int64p(5),
	}}, config.UpdateReplace))
	assert.Equal(t, "-1", readFile(t, dir, memLimitFile))
	assert.Equal(t, "5", readFile(t, dir, memSoftLimitFile))
	assert.Equal(t, "60", readFile(t, dir, memSwappinessFile))
}

func TestMemoryUpdateReplaceToleratesMissingOptional(t *testing.T) {
	env := newTestEnv(t)
	h, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{}})

	// 模拟没开 swap accounting 的内核
	require.NoError(t, os.Remove(path.Join(dir, memSwapLimitFile)))
	require.NoError(t, os.Remove(path.Join(dir, memDirtyFile)))

	require.NoError(t, h.Update(&config.ContainerSpec{Memory: &config.MemorySpec{}}, config.UpdateReplace))
}

func TestMemoryStats(t *testing.T) {
	env := newTestEnv(t)
	h, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{}})

	require.NoError(t, os.WriteFile(path.Join(dir, memUsageFile), []byte("4096\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, memLimitFile), []byte("1048576\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, memMaxUsageFile), []byte("8192\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, memFailCntFile), []byte("2\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, memStatFile), []byte("cache 100\nrss 200\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(dir, memSwapMaxFile), []byte("9000\n"), 0644))

	var stats config.ContainerStats
	require.NoError(t, h.Stats(config.StatsSummary, &stats))
	require.NotNil(t, stats.Memory)
	assert.Equal(t, uint64(4096), stats.Memory.Usage)
	assert.Equal(t, int64(1048576), stats.Memory.Limit)
	assert.Equal(t, uint64(8192), stats.Memory.MaxUsage)
	assert.Equal(t, uint64(2), stats.Memory.FailCnt)
	assert.Nil(t, stats.Memory.Stat)

	stats = config.ContainerStats{}
	require.NoError(t, h.Stats(config.StatsFull, &stats))
	assert.Equal(t, map[string]uint64{"cache": 100, "rss": 200}, stats.Memory.Stat)
	require.NotNil(t, stats.Memory.SwapMaxUsage)
	assert.Equal(t, uint64(9000), *stats.Memory.SwapMaxUsage)
}

func TestMemoryStatsUnlimitedLimit(t *testing.T) {
	env := newTestEnv(t)
	h, _ := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{}})

	// 内核的天文数字折算成 -1
	var stats config.ContainerStats
	require.NoError(t, h.Stats(config.StatsSummary, &stats))
	assert.Equal(t, int64(-1), stats.Memory.Limit)
}

func TestMemorySpecRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	h, _ := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{
		Limit:       int64p(1 << 20),
		Reservation: int64p(1 << 19),
		Swappiness:  uint64p(30),
	}})

	got, err := specOf(h)
	require.NoError(t, err)
	require.NotNil(t, got.Memory)
	assert.Equal(t, int64(1<<20), *got.Memory.Limit)
	assert.Equal(t, int64(1<<19), *got.Memory.Reservation)
	assert.Equal(t, uint64(30), *got.Memory.Swappiness)

	// Spec 的输出再 REPLACE 回去，状态必须稳定。
	// oom_control 在真实内核下写入标志、读回键值格式，
	// 测试目录里手工恢复读回格式
	require.NoError(t, h.Update(got, config.UpdateReplace))
	require.NoError(t, os.WriteFile(path.Join(env.mounts[config.ResourceMemory], "box", memOomControlFile),
		[]byte("oom_kill_disable 0\nunder_oom 0\n"), 0644))
	again, err := specOf(h)
	require.NoError(t, err)
	assert.Equal(t, got.Memory.Limit, again.Memory.Limit)
	assert.Equal(t, got.Memory.Reservation, again.Memory.Reservation)
	assert.Equal(t, got.Memory.Swappiness, again.Memory.Swappiness)
}

func specOf(h ResourceHandler) (*config.ContainerSpec, error) {
	spec := &config.ContainerSpec{}
	if err := h.Spec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func TestMemoryReadOomKillDisable(t *testing.T) {
	env := newTestEnv(t)
	h, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{}})

	require.NoError(t, os.WriteFile(path.Join(dir, memOomControlFile),
		[]byte("oom_kill_disable 1\nunder_oom 0\n"), 0644))

	got, err := specOf(h)
	require.NoError(t, err)
	require.NotNil(t, got.Memory.OomKillDisable)
	assert.True(t, *got.Memory.OomKillDisable)
}

func TestMemoryRegisterNotification(t *testing.T) {
	env := newTestEnv(t)
	h, _ := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{}})

	// OOM 与阈值事件各注册一次，句柄互不相同
	oom, err := h.RegisterNotification(&config.EventSpec{Oom: &config.OomEvent{}}, func(string, error) {})
	require.NoError(t, err)

	thr, err := h.RegisterNotification(&config.EventSpec{
		MemoryThreshold: &config.MemoryThresholdEvent{Usage: 1 << 20},
	}, func(string, error) {})
	require.NoError(t, err)
	assert.NotEqual(t, oom, thr)

	require.NoError(t, h.UnregisterNotification(oom))
	require.NoError(t, h.UnregisterNotification(thr))

	// 恰好一种事件：零个或两个都拒绝
	_, err = h.RegisterNotification(&config.EventSpec{}, func(string, error) {})
	assert.ErrorIs(t, err, cgerrors.ErrInvalidArgument)

	_, err = h.RegisterNotification(&config.EventSpec{
		Oom:             &config.OomEvent{},
		MemoryThreshold: &config.MemoryThresholdEvent{Usage: 1},
	}, func(string, error) {})
	assert.ErrorIs(t, err, cgerrors.ErrInvalidArgument)
}

func TestMemoryEventControlLine(t *testing.T) {
	env := newTestEnv(t)
	h, dir := createMemoryHandler(t, env, "/box", &config.ContainerSpec{Memory: &config.MemorySpec{}})

	// 阈值事件的注册行带阈值参数："<efd> <cfd> <字节数>"
	handle, err := h.RegisterNotification(&config.EventSpec{
		MemoryThreshold: &config.MemoryThresholdEvent{Usage: 12345},
	}, func(string, error) {})
	require.NoError(t, err)
	defer h.UnregisterNotification(handle)

	line := readFile(t, dir, "cgroup.event_control")
	assert.Regexp(t, `^\d+ \d+ 12345$`, line)
}
