package constant

const (
	// cgroup 层级在宿主机上的统一挂载点目录
	CgroupMountRoot = "/sys/fs/cgroup"

	// 层级挂载信息的来源
	MountInfoPath = "/proc/self/mountinfo"
)
