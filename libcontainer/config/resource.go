package config

// ResourceType 是受管资源类型的封闭枚举。
// 值就是对应 cgroup v1 子系统在 /proc/self/mountinfo 里的名字
type ResourceType string

const (
	ResourceCpu     ResourceType = "cpu"
	ResourceCpuSet  ResourceType = "cpuset"
	ResourceCpuAcct ResourceType = "cpuacct"
	ResourceMemory  ResourceType = "memory"
	ResourceBlkio   ResourceType = "blkio"
)

// 所有资源类型，顺序即工厂表的注册顺序
var ResourceTypes = []ResourceType{
	ResourceCpu,
	ResourceCpuSet,
	ResourceCpuAcct,
	ResourceMemory,
	ResourceBlkio,
}

// UpdatePolicy 决定 Update 如何对待 spec 中缺席的字段
type UpdatePolicy int

const (
	// 只写 spec 中出现的字段，其余保持不变
	UpdateDiff UpdatePolicy = iota

	// spec 中缺席的字段重置为资源各自的默认值
	UpdateReplace
)

// StatsType 决定 Stats 返回的统计范围
type StatsType int

const (
	// 固定的、廉价的统计子集
	StatsSummary StatsType = iota

	// 额外包含昂贵/可选的数据（直方图、限流计数等）
	StatsFull
)

// LatencyClass 是容器创建时声明的调度延迟等级。
// 只在顶层容器创建时决定 batch 与否，创建后不可变更
type LatencyClass int

const (
	LatencyBestEffort LatencyClass = 1
	LatencyNormal     LatencyClass = 2
	LatencyPriority   LatencyClass = 3
	LatencyPremier    LatencyClass = 4
)

func (l LatencyClass) String() string {
	switch l {
	case LatencyBestEffort:
		return "best-effort"
	case LatencyNormal:
		return "normal"
	case LatencyPriority:
		return "priority"
	case LatencyPremier:
		return "premier"
	}
	return "unknown"
}
