package config

// ContainerStats 是从内核控制文件读回的结构化统计。
// 可选的统计项在内核不支持时整体缺席（nil / 零长度），不会让整个调用失败
type ContainerStats struct {
	Cpu     *CpuStats     `json:"cpu,omitempty"`
	CpuAcct *CpuAcctStats `json:"cpuacct,omitempty"`
	Memory  *MemoryStats  `json:"memory,omitempty"`
	BlockIo *BlkioStats   `json:"blockio,omitempty"`
}

// CPU 限流统计，来自 cpu.stat
type ThrottlingStats struct {
	Periods       uint64 `json:"periods"`
	ThrottledRuns uint64 `json:"throttledRuns"`
	ThrottledTime uint64 `json:"throttledTime"`
}

// 调度直方图：桶边界 -> 计数
type HistogramStats struct {
	Name    string            `json:"name"`
	Buckets map[uint64]uint64 `json:"buckets"`
}

type CpuStats struct {
	// 累计使用时间（纳秒），SUMMARY 即包含
	Usage uint64 `json:"usage"`

	// 以下是 FULL 才读取的昂贵/可选数据
	Throttling *ThrottlingStats `json:"throttling,omitempty"`
	Histograms []HistogramStats `json:"histograms,omitempty"`
}

type CpuAcctStats struct {
	// 累计使用时间（纳秒）
	Usage uint64 `json:"usage"`

	// 用户态/内核态时间（USER_HZ 计数），来自 cpuacct.stat
	User   uint64 `json:"user"`
	System uint64 `json:"system"`

	// 每个逻辑 CPU 的累计使用时间，FULL 才读取
	PerCpu []uint64 `json:"perCpu,omitempty"`
}

type MemoryStats struct {
	// SUMMARY 子集
	Usage    uint64 `json:"usage"`
	Limit    int64  `json:"limit"`
	MaxUsage uint64 `json:"maxUsage"`
	FailCnt  uint64 `json:"failCnt"`

	// FULL：memory.stat 的完整键值
	Stat map[string]uint64 `json:"stat,omitempty"`

	// FULL：含 swap 的峰值，内核不支持 swap accounting 时缺席
	SwapMaxUsage *uint64 `json:"swapMaxUsage,omitempty"`
}

// 单设备单操作的块 I/O 计数
type BlkioEntry struct {
	Device DeviceID `json:"device"`
	Op     string   `json:"op"`
	Value  uint64   `json:"value"`
}

type BlkioStats struct {
	// SUMMARY 子集：限流层的字节数与请求数
	ServiceBytes []BlkioEntry `json:"serviceBytes,omitempty"`
	Serviced     []BlkioEntry `json:"serviced,omitempty"`

	// FULL：CFQ 的设备时间与扇区数，可选
	Time    []BlkioEntry `json:"time,omitempty"`
	Sectors []BlkioEntry `json:"sectors,omitempty"`
}
