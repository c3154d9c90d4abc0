package cgroup

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// cpuset 层级的控制文件
const (
	cpusetCpusFile = "cpuset.cpus"
	cpusetMemsFile = "cpuset.mems"
)

type cpusetHandler struct {
	name      string
	cpuset    *Controller
	hier      *Hierarchy
	destroyed bool
}

func (h *cpusetHandler) Resource() config.ResourceType { return config.ResourceCpuSet }
func (h *cpusetHandler) ContainerName() string         { return h.name }

func (h *cpusetHandler) Update(spec *config.ContainerSpec, policy config.UpdatePolicy) error {
	s := cpusetSpecOf(spec)
	replace := policy == config.UpdateReplace

	for _, f := range []struct {
		file  string
		value *string
	}{
		{cpusetCpusFile, s.Cpus},
		{cpusetMemsFile, s.Mems},
	} {
		if f.value != nil {
			if err := h.cpuset.SetParamString(f.file, *f.value); err != nil {
				return err
			}
		} else if replace {
			// 重置 = 放开到层级根的全量掩码
			if err := h.inheritFrom(h.hier.Root(), f.file); err != nil {
				return err
			}
		}
	}
	return nil
}

// inheritFrom 把 dir 下同名掩码文件的值拷贝到本 cgroup。
// 来源或目标缺失都按可选特性放过
func (h *cpusetHandler) inheritFrom(dir, file string) error {
	content, readable := h.cpuset.kernel.ReadFileToString(path.Join(dir, file))
	if !readable {
		return nil
	}
	mask := strings.TrimSpace(content)
	if mask == "" {
		return nil
	}
	return ignoreNotFound(h.cpuset.SetParamString(file, mask))
}

// cpuset 层级没有统计数据
func (h *cpusetHandler) Stats(config.StatsType, *config.ContainerStats) error {
	return nil
}

func (h *cpusetHandler) Spec(spec *config.ContainerSpec) error {
	cs := &config.CpusetSpec{}

	for _, f := range []struct {
		file string
		dst  **string
	}{
		{cpusetCpusFile, &cs.Cpus},
		{cpusetMemsFile, &cs.Mems},
	} {
		content, err := h.cpuset.GetParamString(f.file)
		if err == nil {
			mask := strings.TrimSpace(content)
			*f.dst = &mask
		} else if !errors.Is(err, cgerrors.ErrNotFound) {
			return err
		}
	}

	spec.CpuSet = cs
	return nil
}

func (h *cpusetHandler) RegisterNotification(es *config.EventSpec, cb notify.Callback) (notify.Handle, error) {
	if es == nil || es.NumEvents() != 1 {
		return 0, fmt.Errorf("event spec must request exactly one event: %w", cgerrors.ErrInvalidArgument)
	}
	return 0, fmt.Errorf("cpuset resource has no notifiable events: %w", cgerrors.ErrUnimplemented)
}

func (h *cpusetHandler) UnregisterNotification(handle notify.Handle) error {
	return h.cpuset.UnregisterNotification(handle)
}

func (h *cpusetHandler) Enter(pid int) error {
	return h.cpuset.Enter(pid)
}

func (h *cpusetHandler) ListSubcontainers() ([]string, error) {
	return h.cpuset.GetSubcontainers()
}

func (h *cpusetHandler) Destroy() error {
	if h.destroyed {
		return nil
	}
	if err := ignoreNotFound(h.cpuset.Destroy()); err != nil {
		return err
	}
	h.destroyed = true
	return nil
}

func cpusetSpecOf(spec *config.ContainerSpec) *config.CpusetSpec {
	if spec != nil && spec.CpuSet != nil {
		return spec.CpuSet
	}
	return &config.CpusetSpec{}
}

type cpusetFactory struct {
	kernel     kernel.API
	dispatcher *notify.Dispatcher
	hier       *Hierarchy
}

func newCpusetFactory(k kernel.API, d *notify.Dispatcher, h *Hierarchy) *cpusetFactory {
	return &cpusetFactory{kernel: k, dispatcher: d, hier: h}
}

func (f *cpusetFactory) Resource() config.ResourceType { return config.ResourceCpuSet }

func (f *cpusetFactory) Get(name string) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p, err := f.hier.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctrl, err := attachController(config.ResourceCpuSet, p, true, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	return &cpusetHandler{name: name, cpuset: ctrl, hier: f.hier}, nil
}

func (f *cpusetFactory) Create(name string, spec *config.ContainerSpec) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	target := f.hier.Path(name)
	ctrl, err := createController(config.ResourceCpuSet, target, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	h := &cpusetHandler{name: name, cpuset: ctrl, hier: f.hier}

	// 新建的 cpuset 掩码是空的，进程进不去；
	// 规格里缺席的掩码先从父目录继承下来
	s := cpusetSpecOf(spec)
	if s.Cpus == nil {
		if err := h.inheritFrom(path.Dir(target), cpusetCpusFile); err != nil {
			return nil, err
		}
	}
	if s.Mems == nil {
		if err := h.inheritFrom(path.Dir(target), cpusetMemsFile); err != nil {
			return nil, err
		}
	}

	if err := h.Update(spec, config.UpdateDiff); err != nil {
		return nil, err
	}
	return h, nil
}

// cpuset 没有机器级的一次性设置
func (f *cpusetFactory) InitMachine(*config.MachineSpec) error {
	return nil
}
