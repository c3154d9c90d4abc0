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

// cpuacct 是纯核算资源：没有可控字段，只产出统计
type cpuAcctHandler struct {
	name      string
	acct      *Controller
	destroyed bool
}

func (h *cpuAcctHandler) Resource() config.ResourceType { return config.ResourceCpuAcct }
func (h *cpuAcctHandler) ContainerName() string         { return h.name }

// 核算层级没有可写的旋钮，任何策略下都是成功的无操作
func (h *cpuAcctHandler) Update(*config.ContainerSpec, config.UpdatePolicy) error {
	return nil
}

func (h *cpuAcctHandler) Stats(t config.StatsType, stats *config.ContainerStats) error {
	as := &config.CpuAcctStats{}

	usage, err := h.acct.GetParamInt(cpuacctUsageFile)
	if err != nil {
		return err
	}
	as.Usage = uint64(usage)

	user, system, err := h.readUserSystem()
	if err != nil {
		return err
	}
	as.User, as.System = user, system

	if t == config.StatsFull {
		perCpu, err := h.readPerCpu()
		if err != nil {
			return err
		}
		as.PerCpu = perCpu
	}

	stats.CpuAcct = as
	return nil
}

// readUserSystem 解析 cpuacct.stat 的 "user N" / "system N" 两行
func (h *cpuAcctHandler) readUserSystem() (uint64, uint64, error) {
	lines, err := h.acct.GetParamLines(cpuacctStatFile)
	if err != nil {
		return 0, 0, err
	}
	defer lines.Close()

	var user, system uint64
	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse %s line %q: %w", cpuacctStatFile, lines.Text(), cgerrors.ErrFailedPrecondition)
		}
		switch fields[0] {
		case "user":
			user = v
		case "system":
			system = v
		}
	}
	return user, system, nil
}

// readPerCpu 解析 cpuacct.usage_percpu（单行、空格分隔的纳秒计数）。
// 文件缺失时整项省略
func (h *cpuAcctHandler) readPerCpu() ([]uint64, error) {
	content, err := h.acct.GetParamString(cpuacctPerCpuFile)
	if errors.Is(err, cgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(content)
	perCpu := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s value %q: %w", cpuacctPerCpuFile, f, cgerrors.ErrFailedPrecondition)
		}
		perCpu = append(perCpu, v)
	}
	return perCpu, nil
}

// 没有可控字段，规格恒为空
func (h *cpuAcctHandler) Spec(*config.ContainerSpec) error {
	return nil
}

func (h *cpuAcctHandler) RegisterNotification(es *config.EventSpec, cb notify.Callback) (notify.Handle, error) {
	if es == nil || es.NumEvents() != 1 {
		return 0, fmt.Errorf("event spec must request exactly one event: %w", cgerrors.ErrInvalidArgument)
	}
	return 0, fmt.Errorf("cpuacct resource has no notifiable events: %w", cgerrors.ErrUnimplemented)
}

func (h *cpuAcctHandler) UnregisterNotification(handle notify.Handle) error {
	return h.acct.UnregisterNotification(handle)
}

func (h *cpuAcctHandler) Enter(pid int) error {
	return h.acct.Enter(pid)
}

func (h *cpuAcctHandler) ListSubcontainers() ([]string, error) {
	return h.acct.GetSubcontainers()
}

func (h *cpuAcctHandler) Destroy() error {
	if h.destroyed {
		return nil
	}
	if err := ignoreNotFound(h.acct.Destroy()); err != nil {
		return err
	}
	h.destroyed = true
	return nil
}

type cpuAcctFactory struct {
	kernel     kernel.API
	dispatcher *notify.Dispatcher
	hier       *Hierarchy
}

func newCpuAcctFactory(k kernel.API, d *notify.Dispatcher, h *Hierarchy) *cpuAcctFactory {
	return &cpuAcctFactory{kernel: k, dispatcher: d, hier: h}
}

func (f *cpuAcctFactory) Resource() config.ResourceType { return config.ResourceCpuAcct }

// Get 带 batch 回退地解析：CPU 工厂会把 best-effort 容器的
// cpuacct 目录镜像到 batch 前缀下，这里要能找回它们
func (f *cpuAcctFactory) Get(name string) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p, err := f.hier.ResolveWithBatch(name)
	if err != nil {
		return nil, err
	}
	ctrl, err := attachController(config.ResourceCpuAcct, p, true, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	return &cpuAcctHandler{name: name, acct: ctrl}, nil
}

// Create 独立创建核算组（不经由 CPU 工厂时的单独用法）
func (f *cpuAcctFactory) Create(name string, spec *config.ContainerSpec) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ctrl, err := createController(config.ResourceCpuAcct, f.hier.Path(name), f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	return &cpuAcctHandler{name: name, acct: ctrl}, nil
}

// 核算层级的 batch 根由 CPU 工厂的 InitMachine 一并预创建
func (f *cpuAcctFactory) InitMachine(*config.MachineSpec) error {
	return nil
}
