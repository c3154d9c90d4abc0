package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// 单次控制文件写入的重试预算（只对 EINTR 生效）
const writeRetries = 3

// 线程归属控制文件
const tasksFile = "tasks"

// Controller 把一种资源类型绑定到一个 cgroup 目录上，
// 提供对该目录下控制文件的带类型读写。
// 文件不存在映射为 NotFound（这个内核不支持该特性），
// 写入失败映射为 Unavailable，两者必须可区分，
// 调用方才能对可选特性忽略 NotFound 而不吞掉真正的 I/O 错误
type Controller struct {
	resType config.ResourceType

	// 该 controller 绑定的物理 cgroup 目录
	hierarchyPath string

	// 是否拥有底层目录。拥有则 Destroy 时删除目录，
	// 否则目录是共享/预置的，Destroy 只释放进程内实例
	ownsCgroup bool

	kernel     kernel.API
	dispatcher *notify.Dispatcher
}

// attachController 绑定到一个已存在的 cgroup 目录
func attachController(resType config.ResourceType, hierarchyPath string, owns bool,
	k kernel.API, d *notify.Dispatcher) (*Controller, error) {
	if !k.Access(hierarchyPath, unix.F_OK) {
		return nil, fmt.Errorf("cgroup %s does not exist: %w", hierarchyPath, cgerrors.ErrNotFound)
	}
	return &Controller{
		resType:       resType,
		hierarchyPath: hierarchyPath,
		ownsCgroup:    owns,
		kernel:        k,
		dispatcher:    d,
	}, nil
}

// createController 创建 cgroup 目录并绑定，目录已存在时失败
func createController(resType config.ResourceType, hierarchyPath string,
	k kernel.API, d *notify.Dispatcher) (*Controller, error) {
	if err := k.MkDir(hierarchyPath); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("cgroup %s: %w", hierarchyPath, cgerrors.ErrAlreadyExists)
		}
		if os.IsNotExist(err) {
			// 父目录缺失，说明父容器没有在这个层级里物化
			return nil, fmt.Errorf("parent of cgroup %s does not exist: %w", hierarchyPath, cgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("create cgroup %s: %v: %w", hierarchyPath, err, cgerrors.ErrFailedPrecondition)
	}
	log.Debugf("created cgroup %s", hierarchyPath)
	return &Controller{
		resType:       resType,
		hierarchyPath: hierarchyPath,
		ownsCgroup:    true,
		kernel:        k,
		dispatcher:    d,
	}, nil
}

// Type 返回绑定的资源类型
func (c *Controller) Type() config.ResourceType {
	return c.resType
}

// HierarchyPath 返回绑定的物理 cgroup 目录
func (c *Controller) HierarchyPath() string {
	return c.hierarchyPath
}

// SetParamString 把字符串值写入控制文件
func (c *Controller) SetParamString(file, value string) error {
	p := path.Join(c.hierarchyPath, file)
	n, err := c.kernel.SafeWriteWithRetry(writeRetries, value, p)
	if err != nil {
		return mapWriteError(p, err)
	}
	log.Debugf("wrote %q (%d bytes) to %s", value, n, p)
	return nil
}

// SetParamInt 把整数值写入控制文件
func (c *Controller) SetParamInt(file string, value int64) error {
	return c.SetParamString(file, strconv.FormatInt(value, 10))
}

// SetParamBool 把布尔值写入控制文件，线上格式是 "1"/"0"（无换行）
func (c *Controller) SetParamBool(file string, value bool) error {
	if value {
		return c.SetParamString(file, "1")
	}
	return c.SetParamString(file, "0")
}

// GetParamString 读取控制文件的完整内容
func (c *Controller) GetParamString(file string) (string, error) {
	p := path.Join(c.hierarchyPath, file)
	content, ok := c.kernel.ReadFileToString(p)
	if !ok {
		return "", fmt.Errorf("control file %s: %w", p, cgerrors.ErrNotFound)
	}
	return content, nil
}

// GetParamInt 读取控制文件并解析为整数
func (c *Controller) GetParamInt(file string) (int64, error) {
	content, err := c.GetParamString(file)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(content), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s content %q as int: %w", file, content, cgerrors.ErrFailedPrecondition)
	}
	return v, nil
}

// GetParamBool 读取控制文件并解析为布尔值，只接受 "0"/"1"
func (c *Controller) GetParamBool(file string) (bool, error) {
	content, err := c.GetParamString(file)
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(content) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("parse %s content %q as bool: %w", file, content, cgerrors.ErrFailedPrecondition)
}

// GetParamLines 返回控制文件的惰性逐行读取器。
// 有限、不可重放；文件不存在时在产出第一行之前就返回 NotFound
func (c *Controller) GetParamLines(file string) (*kernel.LineScanner, error) {
	p := path.Join(c.hierarchyPath, file)
	ls, err := c.kernel.OpenLines(p)
	if err != nil {
		return nil, fmt.Errorf("control file %s: %w", p, cgerrors.ErrNotFound)
	}
	return ls, nil
}

// GetPids 读取 file 中的全部 PID/TID。
// 任何一行解析失败都让整个调用失败，不返回部分结果
func (c *Controller) GetPids(file string) ([]int, error) {
	content, err := c.GetParamString(file)
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("parse pid line %q in %s: %w", line, file, cgerrors.ErrFailedPrecondition)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// GetSubcontainers 列出 hierarchyPath 的直接子目录名。
// 没有子目录是合法结果，不是错误
func (c *Controller) GetSubcontainers() ([]string, error) {
	names, err := c.kernel.ReadSubdirs(c.hierarchyPath)
	if err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", c.hierarchyPath, err, cgerrors.ErrNotFound)
	}
	return names, nil
}

// Enter 把线程 pid 移入本 cgroup（内核保证原子性）
func (c *Controller) Enter(pid int) error {
	return c.SetParamString(tasksFile, strconv.Itoa(pid))
}

// RegisterNotification 在本 cgroup 的 file 上注册内核事件通知。
// 回调必须可以被重复调用：事件每次发生都会触发同一个回调
func (c *Controller) RegisterNotification(file, args string, cb notify.Callback) (notify.Handle, error) {
	return c.dispatcher.Register(c.hierarchyPath, file, args, cb)
}

// UnregisterNotification 注销先前注册的通知
func (c *Controller) UnregisterNotification(h notify.Handle) error {
	return c.dispatcher.Unregister(h)
}

// Destroy 释放该实例；只有拥有底层目录时才删除目录。
// 重复 Destroy 同一个实例是调用方的编程错误，这里不做运行时检查
func (c *Controller) Destroy() error {
	if !c.ownsCgroup {
		return nil
	}
	// 目录消失前先注销挂在它上面的通知
	c.dispatcher.UnregisterAll(c.hierarchyPath)

	if err := c.kernel.RmDir(c.hierarchyPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("cgroup %s: %w", c.hierarchyPath, cgerrors.ErrNotFound)
		}
		return fmt.Errorf("remove cgroup %s: %v: %w", c.hierarchyPath, err, cgerrors.ErrFailedPrecondition)
	}
	log.Debugf("removed cgroup %s", c.hierarchyPath)
	return nil
}

// 写失败的映射：打不开是 NotFound（特性不存在），
// 重试耗尽的写失败是 Unavailable
func mapWriteError(p string, err error) error {
	if errors.Is(err, kernel.ErrOpen) {
		return fmt.Errorf("control file %s: %v: %w", p, err, cgerrors.ErrNotFound)
	}
	return fmt.Errorf("write %s: %v: %w", p, err, cgerrors.ErrUnavailable)
}
