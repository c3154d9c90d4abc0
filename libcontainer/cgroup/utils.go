package cgroup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/constant"
	"m-contain/libcontainer/kernel"
)

var (
	isUnifiedOnce sync.Once // sync.Once 用于确保某种操作只进行一次
	isUnified     bool
)

// IsCgroup2UnifiedMode 检查宿主机是否运行在 cgroup v2 统一模式。
// 本系统管理的是 v1 的按资源分裂层级，统一模式下直接拒绝工作
func IsCgroup2UnifiedMode() bool {
	// 结果在进程内不会变化，只探测一次
	isUnifiedOnce.Do(func() {
		var st unix.Statfs_t
		err := unix.Statfs(constant.CgroupMountRoot, &st)

		// 挂载点不存在时肯定不是统一模式
		if err != nil && os.IsNotExist(err) {
			isUnified = false
		} else {
			isUnified = (st.Type == unix.CGROUP2_SUPER_MAGIC)
		}
	})
	return isUnified
}

// FindHierarchyMounts 从 /proc/self/mountinfo 推导每种资源的层级挂载根。
// mountinfo 的最后一列是挂载选项，v1 的 cgroup 挂载会把子系统名列在其中。
// 解析不到的子系统回退到 /sys/fs/cgroup/<名字> 这个约定位置
func FindHierarchyMounts() map[config.ResourceType]string {
	mounts := make(map[config.ResourceType]string, len(config.ResourceTypes))
	for _, t := range config.ResourceTypes {
		mounts[t] = constant.CgroupMountRoot + "/" + string(t)
	}

	f, err := os.Open(constant.MountInfoPath)
	if err != nil {
		return mounts
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), " ")
		if len(fields) < 5 {
			continue
		}
		for _, opt := range strings.Split(fields[len(fields)-1], ",") {
			for _, t := range config.ResourceTypes {
				if opt == string(t) {
					mounts[t] = fields[4]
				}
			}
		}
	}
	return mounts
}

// ignoreNotFound 吞掉可选特性的 NotFound：
// 内核不支持该特性时把操作当作无事发生
func ignoreNotFound(err error) error {
	if err == nil || errors.Is(err, cgerrors.ErrNotFound) {
		return nil
	}
	return err
}

// ensureCgroupDir 创建目录，已存在时视为成功（InitMachine 的幂等语义）
func ensureCgroupDir(k kernel.API, p string) error {
	if err := k.MkDir(p); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create %s: %v: %w", p, err, cgerrors.ErrFailedPrecondition)
	}
	return nil
}
