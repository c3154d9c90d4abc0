package libcontainer

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
)

// Container 是按容器名聚合各资源 handler 的薄门面。
// 资源管理本身全部在 handler/controller 层，这里只做扇出
type Container struct {
	Name     string
	handlers map[config.ResourceType]cgroup.ResourceHandler
}

// CreateContainer 为 spec 中出现的每种资源创建 cgroup 并返回容器对象。
// 多资源创建不是事务：某个资源失败时错误向上传播，
// 已建成的资源留在原地，由调用方 Get 后 Destroy 清理
func CreateContainer(fs *cgroup.FactorySet, name string, spec *config.ContainerSpec) (*Container, error) {
	c := &Container{
		Name:     name,
		handlers: make(map[config.ResourceType]cgroup.ResourceHandler),
	}

	for _, t := range resourcesOf(spec) {
		f, err := fs.Factory(t)
		if err != nil {
			return nil, err
		}
		h, err := f.Create(name, spec)
		if err != nil {
			log.Errorf("create %s for container %s failed: %v", t, name, err)
			return nil, err
		}
		c.handlers[t] = h
	}

	if len(c.handlers) == 0 {
		return nil, fmt.Errorf("spec selects no resources: %w", cgerrors.ErrInvalidArgument)
	}
	return c, nil
}

// GetContainer 找回一个已存在容器参与的所有资源。
// 单个资源缺席不算错误；一个都找不到才返回 NotFound
func GetContainer(fs *cgroup.FactorySet, name string) (*Container, error) {
	c := &Container{
		Name:     name,
		handlers: make(map[config.ResourceType]cgroup.ResourceHandler),
	}

	for _, t := range config.ResourceTypes {
		// CPU handler 已经独占了核算组，不再单独绑一个 cpuacct handler
		if t == config.ResourceCpuAcct {
			if _, ok := c.handlers[config.ResourceCpu]; ok {
				continue
			}
		}
		f, err := fs.Factory(t)
		if err != nil {
			return nil, err
		}
		h, err := f.Get(name)
		if errors.Is(err, cgerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.handlers[t] = h
	}

	if len(c.handlers) == 0 {
		return nil, fmt.Errorf("container %s not found in any hierarchy: %w", name, cgerrors.ErrNotFound)
	}
	return c, nil
}

// Resources 返回该容器当前持有的资源类型
func (c *Container) Resources() []config.ResourceType {
	var types []config.ResourceType
	for _, t := range config.ResourceTypes {
		if _, ok := c.handlers[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// Update 把 spec 按策略应用到持有的每个资源上
func (c *Container) Update(spec *config.ContainerSpec, policy config.UpdatePolicy) error {
	for _, t := range c.Resources() {
		if err := c.handlers[t].Update(spec, policy); err != nil {
			return fmt.Errorf("update %s: %w", t, err)
		}
	}
	return nil
}

// Stats 汇总各资源的统计
func (c *Container) Stats(t config.StatsType) (*config.ContainerStats, error) {
	stats := &config.ContainerStats{}
	for _, rt := range c.Resources() {
		if err := c.handlers[rt].Stats(t, stats); err != nil {
			return nil, fmt.Errorf("stats for %s: %w", rt, err)
		}
	}
	return stats, nil
}

// Spec 从内核状态重建容器的完整规格
func (c *Container) Spec() (*config.ContainerSpec, error) {
	spec := &config.ContainerSpec{}
	for _, rt := range c.Resources() {
		if err := c.handlers[rt].Spec(spec); err != nil {
			return nil, fmt.Errorf("spec for %s: %w", rt, err)
		}
	}
	return spec, nil
}

// Enter 把线程移入容器参与的所有层级
func (c *Container) Enter(pid int) error {
	for _, t := range c.Resources() {
		if err := c.handlers[t].Enter(pid); err != nil {
			return fmt.Errorf("enter %s: %w", t, err)
		}
	}
	return nil
}

// RegisterNotification 把事件路由给拥有对应事件的资源 handler
func (c *Container) RegisterNotification(es *config.EventSpec, cb notify.Callback) (notify.Handle, error) {
	if es == nil || es.NumEvents() != 1 {
		return 0, fmt.Errorf("event spec must request exactly one event: %w", cgerrors.ErrInvalidArgument)
	}
	h, ok := c.handlers[config.ResourceMemory]
	if !ok {
		return 0, fmt.Errorf("container %s holds no memory resource: %w", c.Name, cgerrors.ErrNotFound)
	}
	return h.RegisterNotification(es, cb)
}

// UnregisterNotification 注销先前注册的通知
func (c *Container) UnregisterNotification(handle notify.Handle) error {
	h, ok := c.handlers[config.ResourceMemory]
	if !ok {
		return fmt.Errorf("container %s holds no memory resource: %w", c.Name, cgerrors.ErrNotFound)
	}
	return h.UnregisterNotification(handle)
}

// ListSubcontainers 列出直接子容器名（取第一个持有的资源层级）
func (c *Container) ListSubcontainers() ([]string, error) {
	for _, t := range c.Resources() {
		return c.handlers[t].ListSubcontainers()
	}
	return nil, nil
}

// Destroy 销毁持有的全部资源。容器层面幂等
func (c *Container) Destroy() error {
	var firstErr error
	for _, t := range c.Resources() {
		if err := c.handlers[t].Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("destroy %s: %w", t, err)
		}
	}
	return firstErr
}

// resourcesOf 按 spec 各节的出现情况选出要创建的资源类型
func resourcesOf(spec *config.ContainerSpec) []config.ResourceType {
	if spec == nil {
		return nil
	}
	var types []config.ResourceType
	if spec.Cpu != nil {
		types = append(types, config.ResourceCpu)
	}
	if spec.CpuSet != nil {
		types = append(types, config.ResourceCpuSet)
	}
	if spec.Memory != nil {
		types = append(types, config.ResourceMemory)
	}
	if spec.BlockIo != nil {
		types = append(types, config.ResourceBlkio)
	}
	return types
}
