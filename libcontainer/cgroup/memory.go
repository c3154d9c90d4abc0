package cgroup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// memory 层级的控制文件
const (
	memLimitFile      = "memory.limit_in_bytes"
	memSoftLimitFile  = "memory.soft_limit_in_bytes"
	memSwapLimitFile  = "memory.memsw.limit_in_bytes"
	memSwappinessFile = "memory.swappiness"
	memDirtyFile      = "memory.dirty_ratio"
	memDirtyBgFile    = "memory.dirty_background_ratio"
	memOomControlFile = "memory.oom_control"
	memUsageFile      = "memory.usage_in_bytes"
	memMaxUsageFile   = "memory.max_usage_in_bytes"
	memFailCntFile    = "memory.failcnt"
	memStatFile       = "memory.stat"
	memSwapMaxFile    = "memory.memsw.max_usage_in_bytes"
)

const (
	// 内核用接近 int64 上限的页对齐值表示"不限制"
	memUnlimitedFloor = int64(1) << 60

	// 规格层面的不限制取值
	memUnlimited = -1

	// 内核的 swappiness 默认值
	defaultSwappiness = 60
)

// 把内核报告的上限值折算到规格量纲：天文数字意味着不限制
func limitFromKernel(v int64) int64 {
	if v >= memUnlimitedFloor {
		return memUnlimited
	}
	return v
}

type memoryHandler struct {
	name      string
	mem       *Controller
	destroyed bool
}

func (h *memoryHandler) Resource() config.ResourceType { return config.ResourceMemory }
func (h *memoryHandler) ContainerName() string         { return h.name }

func (h *memoryHandler) Update(spec *config.ContainerSpec, policy config.UpdatePolicy) error {
	s := memorySpecOf(spec)
	replace := policy == config.UpdateReplace

	// 上限与软保留是核心字段：显式给出时任何错误都向上传播
	if s.Limit != nil {
		if err := h.mem.SetParamInt(memLimitFile, *s.Limit); err != nil {
			return err
		}
	} else if replace {
		if err := ignoreNotFound(h.mem.SetParamInt(memLimitFile, memUnlimited)); err != nil {
			return err
		}
	}

	if s.Reservation != nil {
		if err := h.mem.SetParamInt(memSoftLimitFile, *s.Reservation); err != nil {
			return err
		}
	} else if replace {
		if err := ignoreNotFound(h.mem.SetParamInt(memSoftLimitFile, 0)); err != nil {
			return err
		}
	}

	// swap accounting 是可选特性（内核可能没开 CONFIG_MEMCG_SWAP），
	// 显式写入也容忍 NotFound
	if s.SwapLimit != nil {
		if err := ignoreNotFound(h.mem.SetParamInt(memSwapLimitFile, *s.SwapLimit)); err != nil {
			return err
		}
	} else if replace {
		if err := ignoreNotFound(h.mem.SetParamInt(memSwapLimitFile, memUnlimited)); err != nil {
			return err
		}
	}

	if s.Swappiness != nil {
		if err := h.mem.SetParamInt(memSwappinessFile, int64(*s.Swappiness)); err != nil {
			return err
		}
	} else if replace {
		if err := ignoreNotFound(h.mem.SetParamInt(memSwappinessFile, defaultSwappiness)); err != nil {
			return err
		}
	}

	// 脏页比例在较老的内核上不存在，0 表示跟随全局配置
	for _, f := range []struct {
		file  string
		value *uint64
	}{
		{memDirtyFile, s.DirtyRatio},
		{memDirtyBgFile, s.DirtyBackgroundRatio},
	} {
		if f.value != nil {
			if err := ignoreNotFound(h.mem.SetParamInt(f.file, int64(*f.value))); err != nil {
				return err
			}
		} else if replace {
			if err := ignoreNotFound(h.mem.SetParamInt(f.file, 0)); err != nil {
				return err
			}
		}
	}

	if s.OomKillDisable != nil {
		if err := ignoreNotFound(h.mem.SetParamBool(memOomControlFile, *s.OomKillDisable)); err != nil {
			return err
		}
	} else if replace {
		if err := ignoreNotFound(h.mem.SetParamBool(memOomControlFile, false)); err != nil {
			return err
		}
	}

	return nil
}

func (h *memoryHandler) Stats(t config.StatsType, stats *config.ContainerStats) error {
	ms := &config.MemoryStats{}

	// SUMMARY 是固定子集，这些文件在所有支持 memcg 的内核上都存在
	usage, err := h.mem.GetParamInt(memUsageFile)
	if err != nil {
		return err
	}
	ms.Usage = uint64(usage)

	limit, err := h.mem.GetParamInt(memLimitFile)
	if err != nil {
		return err
	}
	ms.Limit = limitFromKernel(limit)

	maxUsage, err := h.mem.GetParamInt(memMaxUsageFile)
	if err != nil {
		return err
	}
	ms.MaxUsage = uint64(maxUsage)

	failCnt, err := h.mem.GetParamInt(memFailCntFile)
	if err != nil {
		return err
	}
	ms.FailCnt = uint64(failCnt)

	if t == config.StatsFull {
		stat, err := h.readStatMap()
		if err != nil {
			return err
		}
		ms.Stat = stat

		swapMax, err := h.mem.GetParamInt(memSwapMaxFile)
		if err == nil {
			v := uint64(swapMax)
			ms.SwapMaxUsage = &v
		} else if !errors.Is(err, cgerrors.ErrNotFound) {
			return err
		}
	}

	stats.Memory = ms
	return nil
}

// readStatMap 解析 memory.stat 的键值对。文件缺失时整项省略
func (h *memoryHandler) readStatMap() (map[string]uint64, error) {
	lines, err := h.mem.GetParamLines(memStatFile)
	if errors.Is(err, cgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer lines.Close()

	stat := make(map[string]uint64)
	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s line %q: %w", memStatFile, lines.Text(), cgerrors.ErrFailedPrecondition)
		}
		stat[fields[0]] = v
	}
	return stat, nil
}

func (h *memoryHandler) Spec(spec *config.ContainerSpec) error {
	ms := &config.MemorySpec{}

	limit, err := h.mem.GetParamInt(memLimitFile)
	if err != nil {
		return err
	}
	l := limitFromKernel(limit)
	ms.Limit = &l

	soft, err := h.mem.GetParamInt(memSoftLimitFile)
	if err != nil {
		return err
	}
	r := soft
	if r >= memUnlimitedFloor {
		r = 0
	}
	ms.Reservation = &r

	swap, err := h.mem.GetParamInt(memSwapLimitFile)
	if err == nil {
		sl := limitFromKernel(swap)
		ms.SwapLimit = &sl
	} else if !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	swappiness, err := h.mem.GetParamInt(memSwappinessFile)
	if err == nil {
		sw := uint64(swappiness)
		ms.Swappiness = &sw
	} else if !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	for _, f := range []struct {
		file string
		dst  **uint64
	}{
		{memDirtyFile, &ms.DirtyRatio},
		{memDirtyBgFile, &ms.DirtyBackgroundRatio},
	} {
		v, err := h.mem.GetParamInt(f.file)
		if err == nil {
			u := uint64(v)
			*f.dst = &u
		} else if !errors.Is(err, cgerrors.ErrNotFound) {
			return err
		}
	}

	disable, err := h.readOomKillDisable()
	if err == nil {
		ms.OomKillDisable = &disable
	} else if !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	spec.Memory = ms
	return nil
}

// readOomKillDisable 从 memory.oom_control 的键值行中取 oom_kill_disable
func (h *memoryHandler) readOomKillDisable() (bool, error) {
	lines, err := h.mem.GetParamLines(memOomControlFile)
	if err != nil {
		return false, err
	}
	defer lines.Close()

	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) == 2 && fields[0] == "oom_kill_disable" {
			return fields[1] == "1", nil
		}
	}
	return false, fmt.Errorf("no oom_kill_disable entry in %s: %w", memOomControlFile, cgerrors.ErrFailedPrecondition)
}

// RegisterNotification 支持两种内核事件：OOM 和内存用量阈值。
// 恰好请求一种，否则 InvalidArgument
func (h *memoryHandler) RegisterNotification(es *config.EventSpec, cb notify.Callback) (notify.Handle, error) {
	if es == nil || es.NumEvents() != 1 {
		return 0, fmt.Errorf("event spec must request exactly one event: %w", cgerrors.ErrInvalidArgument)
	}
	switch {
	case es.Oom != nil:
		return h.mem.RegisterNotification(memOomControlFile, "", cb)
	case es.MemoryThreshold != nil:
		args := strconv.FormatUint(es.MemoryThreshold.Usage, 10)
		return h.mem.RegisterNotification(memUsageFile, args, cb)
	}
	return 0, fmt.Errorf("unsupported event: %w", cgerrors.ErrUnimplemented)
}

func (h *memoryHandler) UnregisterNotification(handle notify.Handle) error {
	return h.mem.UnregisterNotification(handle)
}

func (h *memoryHandler) Enter(pid int) error {
	return h.mem.Enter(pid)
}

func (h *memoryHandler) ListSubcontainers() ([]string, error) {
	return h.mem.GetSubcontainers()
}

func (h *memoryHandler) Destroy() error {
	if h.destroyed {
		return nil
	}
	if err := ignoreNotFound(h.mem.Destroy()); err != nil {
		return err
	}
	h.destroyed = true
	return nil
}

func memorySpecOf(spec *config.ContainerSpec) *config.MemorySpec {
	if spec != nil && spec.Memory != nil {
		return spec.Memory
	}
	return &config.MemorySpec{}
}

// memoryFactory：memory 层级是恒等映射，没有 batch 变体
type memoryFactory struct {
	kernel     kernel.API
	dispatcher *notify.Dispatcher
	hier       *Hierarchy
}

func newMemoryFactory(k kernel.API, d *notify.Dispatcher, h *Hierarchy) *memoryFactory {
	return &memoryFactory{kernel: k, dispatcher: d, hier: h}
}

func (f *memoryFactory) Resource() config.ResourceType { return config.ResourceMemory }

func (f *memoryFactory) Get(name string) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p, err := f.hier.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctrl, err := attachController(config.ResourceMemory, p, true, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	return &memoryHandler{name: name, mem: ctrl}, nil
}

func (f *memoryFactory) Create(name string, spec *config.ContainerSpec) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ctrl, err := createController(config.ResourceMemory, f.hier.Path(name), f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	h := &memoryHandler{name: name, mem: ctrl}
	if err := h.Update(spec, config.UpdateDiff); err != nil {
		return nil, err
	}
	return h, nil
}

// memory 没有机器级的一次性设置
func (f *memoryFactory) InitMachine(*config.MachineSpec) error {
	return nil
}
