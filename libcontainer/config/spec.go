package config

// ContainerSpec 是容器的结构化资源规格。
// 所有叶子字段都用指针表达"是否出现"：nil 表示调用方没有给出该字段，
// Update 的 DIFF/REPLACE 语义就建立在这个区分之上
type ContainerSpec struct {
	Cpu     *CpuSpec    `json:"cpu,omitempty"`
	CpuSet  *CpusetSpec `json:"cpuset,omitempty"`
	Memory  *MemorySpec `json:"memory,omitempty"`
	BlockIo *BlkioSpec  `json:"blockio,omitempty"`
}

// CPU 资源规格
type CpuSpec struct {
	// 相对权重，单位是每秒毫核（1000 = 一个核），落到 cpu.shares
	Limit *uint64 `json:"limit,omitempty"`

	// 硬上限，单位同上，落到 cpu.cfs_quota_us
	MaxLimit *uint64 `json:"maxLimit,omitempty"`

	// 调度延迟等级。创建后不可变更
	Latency *LatencyClass `json:"latency,omitempty"`

	// 调度直方图的桶边界，只在创建时写入 cpu.histogram
	HistogramBuckets []uint64 `json:"histogramBuckets,omitempty"`
}

// CPU/内存节点亲和性规格，掩码用内核的列表语法，如 "0-3,7"
type CpusetSpec struct {
	Cpus *string `json:"cpus,omitempty"`
	Mems *string `json:"mems,omitempty"`
}

// 内存资源规格
type MemorySpec struct {
	// 内存上限（字节），-1 表示不限制
	Limit *int64 `json:"limit,omitempty"`

	// 软保留（字节），落到 memory.soft_limit_in_bytes
	Reservation *int64 `json:"reservation,omitempty"`

	// 内存+交换上限（字节），内核不支持 swap accounting 时忽略
	SwapLimit *int64 `json:"swapLimit,omitempty"`

	// 换页积极程度，0-100
	Swappiness *uint64 `json:"swappiness,omitempty"`

	// 脏页比例，0 表示跟随全局配置
	DirtyRatio           *uint64 `json:"dirtyRatio,omitempty"`
	DirtyBackgroundRatio *uint64 `json:"dirtyBackgroundRatio,omitempty"`

	// 超限时是否禁止 OOM killer
	OomKillDisable *bool `json:"oomKillDisable,omitempty"`
}

// 块设备标识（主:次设备号）
type DeviceID struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
}

// 单个设备的权重项
type DeviceWeight struct {
	Device DeviceID `json:"device"`
	Weight uint64   `json:"weight"`
}

// 单个设备的限流项（字节/秒 或 次/秒）
type DeviceLimit struct {
	Device DeviceID `json:"device"`
	Value  uint64   `json:"value"`
}

// 块 I/O 资源规格
type BlkioSpec struct {
	// 全局权重，10-1000
	Weight *uint64 `json:"weight,omitempty"`

	// 按设备覆盖的权重
	WeightDevice []DeviceWeight `json:"weightDevice,omitempty"`

	// 按设备的限流
	ThrottleReadBps   []DeviceLimit `json:"throttleReadBps,omitempty"`
	ThrottleWriteBps  []DeviceLimit `json:"throttleWriteBps,omitempty"`
	ThrottleReadIops  []DeviceLimit `json:"throttleReadIops,omitempty"`
	ThrottleWriteIops []DeviceLimit `json:"throttleWriteIops,omitempty"`
}

// MachineSpec 是 InitMachine 的机器级一次性配置
type MachineSpec struct {
	// 机器级的调度直方图桶边界，为空则不配置
	CpuHistogramBuckets []uint64 `json:"cpuHistogramBuckets,omitempty"`
}
