package cgroup

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// 真实内核会在新 cgroup 目录里自动物化控制文件，临时目录不会。
// 测试内核在 MkDir 时把这些文件预置出来，其余操作全部落到真实实现上
type testKernel struct {
	kernel.API
}

func newTestKernel() *testKernel {
	return &testKernel{API: kernel.New()}
}

func (t *testKernel) MkDir(p string) error {
	if err := t.API.MkDir(p); err != nil {
		return err
	}
	seedControlFiles(p)
	return nil
}

// 真实内核的 rmdir 不关心控制文件，测试目录里它们是普通文件
func (t *testKernel) RmDir(p string) error {
	if _, err := os.Stat(p); err != nil {
		return err
	}
	return os.RemoveAll(p)
}

// 新建 cgroup 在真实内核下的初始文件内容
var controlFileDefaults = map[string]string{
	"tasks":                "",
	"cgroup.event_control": "",

	"cpu.shares":        "1024\n",
	"cpu.cfs_quota_us":  "-1\n",
	"cpu.cfs_period_us": "100000\n",
	"cpu.stat":          "nr_periods 0\nnr_throttled 0\nthrottled_time 0\n",

	"cpuacct.usage":        "0\n",
	"cpuacct.stat":         "user 0\nsystem 0\n",
	"cpuacct.usage_percpu": "0 0\n",

	"cpuset.cpus": "",
	"cpuset.mems": "",

	"memory.limit_in_bytes":           "9223372036854771712\n",
	"memory.soft_limit_in_bytes":      "9223372036854771712\n",
	"memory.memsw.limit_in_bytes":     "9223372036854771712\n",
	"memory.swappiness":               "60\n",
	"memory.dirty_ratio":              "0\n",
	"memory.dirty_background_ratio":   "0\n",
	"memory.oom_control":              "oom_kill_disable 0\nunder_oom 0\n",
	"memory.usage_in_bytes":           "0\n",
	"memory.max_usage_in_bytes":       "0\n",
	"memory.failcnt":                  "0\n",
	"memory.stat":                     "cache 0\nrss 0\n",
	"memory.memsw.max_usage_in_bytes": "0\n",

	"blkio.weight":                     "500\n",
	"blkio.weight_device":              "",
	"blkio.throttle.read_bps_device":   "",
	"blkio.throttle.write_bps_device":  "",
	"blkio.throttle.read_iops_device":  "",
	"blkio.throttle.write_iops_device": "",
	"blkio.throttle.io_service_bytes":  "Total 0\n",
	"blkio.throttle.io_serviced":       "Total 0\n",
	"blkio.time":                       "",
	"blkio.sectors":                    "",
}

func seedControlFiles(dir string) {
	for name, content := range controlFileDefaults {
		_ = os.WriteFile(path.Join(dir, name), []byte(content), 0644)
	}
}

// testEnv 是一套指向临时目录的完整工厂集合
type testEnv struct {
	kernel     *testKernel
	dispatcher *notify.Dispatcher
	factories  *FactorySet
	mounts     map[config.ResourceType]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	k := newTestKernel()
	d, err := notify.NewDispatcher(k)
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	base := t.TempDir()
	mounts := make(map[config.ResourceType]string, len(config.ResourceTypes))
	for _, rt := range config.ResourceTypes {
		root := path.Join(base, string(rt))
		require.NoError(t, k.MkDir(root))
		mounts[rt] = root
	}

	// 层级根上的掩码在真实内核下永远非空
	cpusetRoot := mounts[config.ResourceCpuSet]
	require.NoError(t, os.WriteFile(path.Join(cpusetRoot, "cpuset.cpus"), []byte("0-3\n"), 0644))
	require.NoError(t, os.WriteFile(path.Join(cpusetRoot, "cpuset.mems"), []byte("0\n"), 0644))

	env := &testEnv{
		kernel:     k,
		dispatcher: d,
		factories:  NewFactorySetWithMounts(k, d, mounts),
		mounts:     mounts,
	}
	// 机器级设置先于任何容器操作，生产路径亦然
	require.NoError(t, env.factories.InitMachine(nil))
	return env
}

func (e *testEnv) factory(t *testing.T, rt config.ResourceType) HandlerFactory {
	t.Helper()
	f, err := e.factories.Factory(rt)
	require.NoError(t, err)
	return f
}

// readFile 直接读层级里的一个文件，用来断言落盘内容
func readFile(t *testing.T, parts ...string) string {
	t.Helper()
	data, err := os.ReadFile(path.Join(parts...))
	require.NoError(t, err)
	return string(data)
}
