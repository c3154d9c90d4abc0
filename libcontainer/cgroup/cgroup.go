package cgroup

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// FactorySet 持有每种资源类型的 HandlerFactory，
// 是资源管理子系统对外的入口。整个进程构造一个
type FactorySet struct {
	factories map[config.ResourceType]HandlerFactory
}

// NewFactorySet 探测层级挂载点并构造全部工厂。
// 统一模式（cgroup v2）的机器不受支持
func NewFactorySet(k kernel.API, d *notify.Dispatcher) (*FactorySet, error) {
	if IsCgroup2UnifiedMode() {
		return nil, fmt.Errorf("cgroup v2 unified mode is not supported: %w", cgerrors.ErrUnimplemented)
	}
	log.Debugf("using cgroup v1 split hierarchies")
	return NewFactorySetWithMounts(k, d, FindHierarchyMounts()), nil
}

// NewFactorySetWithMounts 用显式给定的挂载根构造工厂集合，
// 测试用它把层级指到临时目录上
func NewFactorySetWithMounts(k kernel.API, d *notify.Dispatcher,
	mounts map[config.ResourceType]string) *FactorySet {
	cpuHier := NewHierarchy(k, mounts[config.ResourceCpu])
	acctHier := NewHierarchy(k, mounts[config.ResourceCpuAcct])

	// 每种资源类型恰好一个工厂实现，静态注册
	factories := []HandlerFactory{
		newCpuFactory(k, d, cpuHier, acctHier),
		newCpusetFactory(k, d, NewHierarchy(k, mounts[config.ResourceCpuSet])),
		newCpuAcctFactory(k, d, acctHier),
		newMemoryFactory(k, d, NewHierarchy(k, mounts[config.ResourceMemory])),
		newBlkioFactory(k, d, NewHierarchy(k, mounts[config.ResourceBlkio])),
	}

	s := &FactorySet{factories: make(map[config.ResourceType]HandlerFactory, len(factories))}
	for _, f := range factories {
		s.factories[f.Resource()] = f
	}
	return s
}

// Factory 返回指定资源类型的工厂
func (s *FactorySet) Factory(t config.ResourceType) (HandlerFactory, error) {
	f, ok := s.factories[t]
	if !ok {
		return nil, fmt.Errorf("no factory for resource %q: %w", t, cgerrors.ErrInvalidArgument)
	}
	return f, nil
}

// InitMachine 依次执行所有工厂的机器级一次性设置。
// 整体幂等：对已初始化的机器重复执行同样成功
func (s *FactorySet) InitMachine(spec *config.MachineSpec) error {
	for _, t := range config.ResourceTypes {
		f, ok := s.factories[t]
		if !ok {
			continue
		}
		if err := f.InitMachine(spec); err != nil {
			return fmt.Errorf("init machine for %s: %v", t, err)
		}
		log.Debugf("machine init done for %s", t)
	}
	return nil
}
