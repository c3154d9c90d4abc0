package cgroup

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/sys/unix"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/kernel"
)

// batch 子系统：best-effort 调度等级的容器被放到这个保留前缀下
const batchSubsystem = "batch"

// Hierarchy 表示一种资源的 cgroup 层级（一个挂载根），
// 负责把逻辑容器名映射到该层级下的物理目录。
// 映射不持久化任何数据，完全靠存在性探测重新推导，
// 所以对同一组已存在目录的解析必须是确定性的
type Hierarchy struct {
	kernel kernel.API

	// 该层级的挂载根，如 /sys/fs/cgroup/cpu
	root string
}

func NewHierarchy(k kernel.API, root string) *Hierarchy {
	return &Hierarchy{kernel: k, root: root}
}

// Root 返回该层级的挂载根
func (h *Hierarchy) Root() string {
	return h.root
}

// Path 返回容器名在默认根下的物理路径
func (h *Hierarchy) Path(name string) string {
	return path.Join(h.root, name)
}

// BatchPath 返回容器名在 batch 保留根下的物理路径
func (h *Hierarchy) BatchPath(name string) string {
	return path.Join(h.root, batchSubsystem, name)
}

// Resolve 做恒等映射解析：容器名直接对应根下的目录
func (h *Hierarchy) Resolve(name string) (string, error) {
	p := h.Path(name)
	if !h.kernel.Access(p, unix.F_OK) {
		return "", fmt.Errorf("container %s not found in %s hierarchy: %w", name, h.root, cgerrors.ErrNotFound)
	}
	return p, nil
}

// ResolveWithBatch 做带 batch 回退的解析，CPU 层级专用。
// 候选顺序固定为：直接路径 → batch 前缀路径 →
// （嵌套超过一层时）去掉首段的路径 → 去掉首段的 batch 路径。
// 第一个存在的候选获胜；全部不存在则 NotFound。
// 客户端工具依赖这个顺序在不知道容器落在哪个根下的情况下定位它
func (h *Hierarchy) ResolveWithBatch(name string) (string, error) {
	candidates := []string{
		h.Path(name),
		h.BatchPath(name),
	}
	if nameDepth(name) >= 2 {
		stripped := stripFirstSegment(name)
		candidates = append(candidates, h.Path(stripped), h.BatchPath(stripped))
	}
	for _, p := range candidates {
		if h.kernel.Access(p, unix.F_OK) {
			return p, nil
		}
	}
	return "", fmt.Errorf("container %s not found in %s hierarchy (probed %d candidates): %w",
		name, h.root, len(candidates), cgerrors.ErrNotFound)
}

// CreateTarget 在创建时确定新容器的目标路径。
// 顶层容器由自己声明的调度等级决定落在默认根还是 batch 根；
// 嵌套容器无条件继承父容器已解析出的根，作为其直接子目录——
// batch 与否只在顶层决定一次，下层只继承，这个不对称是有意的。
// 父容器解析不到时返回 NotFound
func (h *Hierarchy) CreateTarget(name string, batch bool) (string, error) {
	if isTopLevel(name) {
		if batch {
			return h.BatchPath(name), nil
		}
		return h.Path(name), nil
	}
	parentPath, err := h.ResolveWithBatch(parentName(name))
	if err != nil {
		return "", err
	}
	return path.Join(parentPath, path.Base(name)), nil
}

// RelativeOf 把本层级下的物理路径换算成相对根的位置，
// 用于在镜像层级（比如 cpuacct 随 cpu）里复用同一落点
func (h *Hierarchy) RelativeOf(hierarchyPath string) string {
	rel := strings.TrimPrefix(hierarchyPath, h.root)
	if rel == "" {
		return "/"
	}
	return rel
}

// ValidateName 检查容器名是否是合法的绝对斜杠路径
func ValidateName(name string) error {
	if name == "" || name[0] != '/' {
		return fmt.Errorf("container name %q must be an absolute path: %w", name, cgerrors.ErrInvalidArgument)
	}
	if name != "/" && (path.Clean(name) != name || strings.HasSuffix(name, "/")) {
		return fmt.Errorf("container name %q is not a clean path: %w", name, cgerrors.ErrInvalidArgument)
	}
	return nil
}

// parentName 返回容器名的父容器名（去掉最后一段）
func parentName(name string) string {
	return path.Dir(name)
}

// isTopLevel 判断容器是否直接挂在根下
func isTopLevel(name string) bool {
	return parentName(name) == "/"
}

// nameDepth 返回容器名的路径段数，"/" 为 0
func nameDepth(name string) int {
	if name == "/" {
		return 0
	}
	return strings.Count(name, "/")
}

// stripFirstSegment 去掉容器名的第一段："/alloc/task" → "/task"
func stripFirstSegment(name string) string {
	rest := strings.TrimPrefix(name, "/")
	i := strings.Index(rest, "/")
	if i < 0 {
		return "/"
	}
	return rest[i:]
}
