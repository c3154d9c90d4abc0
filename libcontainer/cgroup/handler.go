package cgroup

import (
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
)

// ResourceHandler 是单容器、单资源类型的门面，
// 在结构化的规格/统计模型和一个或多个 Controller 之间做翻译。
// 一个 handler 独占它的 controller，不与其他 handler 共享
type ResourceHandler interface {
	// Resource 返回该 handler 负责的资源类型
	Resource() config.ResourceType

	// ContainerName 返回该 handler 所属的容器名
	ContainerName() string

	// Update 按策略把 spec 写入内核。
	// DIFF 只写出现的字段；REPLACE 把缺席字段重置为资源默认值。
	// 内核不支持的重置被忽略（NotFound），
	// 但试图变更不可变属性会失败 InvalidArgument
	Update(spec *config.ContainerSpec, policy config.UpdatePolicy) error

	// Stats 读取内核状态填入 stats 中本资源的部分。
	// SUMMARY 是固定的廉价子集，FULL 追加昂贵/可选数据；
	// 单个可选项缺失（NotFound）时从结果中省略而不是让整个调用失败
	Stats(t config.StatsType, stats *config.ContainerStats) error

	// Spec 读取当前内核状态，重建出等价的规格（Update 的逆操作）
	Spec(spec *config.ContainerSpec) error

	// RegisterNotification 注册一个内核事件通知。
	// eventSpec 必须恰好请求一种事件，否则 InvalidArgument；
	// 本资源不支持任何事件时返回 Unimplemented
	RegisterNotification(eventSpec *config.EventSpec, cb notify.Callback) (notify.Handle, error)

	// UnregisterNotification 注销先前注册的通知
	UnregisterNotification(h notify.Handle) error

	// Enter 把线程 pid 移入该资源的 cgroup
	Enter(pid int) error

	// ListSubcontainers 列出该资源层级下的直接子容器名
	ListSubcontainers() ([]string, error)

	// Destroy 销毁所有独占的 controller。
	// handler 层面幂等：重复调用成功返回
	Destroy() error
}

// HandlerFactory 负责把容器名解析成物理层级路径，
// 并生产/找回/销毁对应资源类型的 ResourceHandler
type HandlerFactory interface {
	// Resource 返回该工厂负责的资源类型
	Resource() config.ResourceType

	// Get 解析层级路径并绑定到已存在的 cgroup 目录。
	// 任何候选路径下都找不到目录时返回 NotFound
	Get(name string) (ResourceHandler, error)

	// Create 为新容器确定目标路径、创建目录并完成一次性设置。
	// 目录已存在返回 AlreadyExists，父容器解析不到返回 NotFound。
	// 多个 controller 部分创建失败时错误向上传播，
	// 已创建的兄弟 controller 留在原地由调用方清理
	Create(name string, spec *config.ContainerSpec) (ResourceHandler, error)

	// InitMachine 做机器级的一次性设置，幂等：
	// 对已初始化的机器重复执行必须同样成功
	InitMachine(spec *config.MachineSpec) error
}
