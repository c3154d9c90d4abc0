package kernel

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// 区分"文件打不开"和"写入失败"两种错误，
// 上层据此映射为 NotFound / Unavailable
var (
	ErrOpen  = errors.New("open failed")
	ErrWrite = errors.New("write failed")
)

// API 是对内核伪文件系统原语的薄封装。
// cgroup 子系统只通过这个接口访问内核，便于在测试中指向临时目录。
type API interface {
	// 创建目录。目录已存在时返回的错误满足 os.IsExist
	MkDir(path string) error

	// 删除一个空目录
	RmDir(path string) error

	// 检查路径是否可以以 mode 方式访问（unix.F_OK / R_OK / W_OK）
	Access(path string, mode uint32) bool

	// 读取整个文件内容。第二个返回值表示文件是否可读
	ReadFileToString(path string) (string, bool)

	// 打开文件并返回一个惰性的逐行读取器
	OpenLines(path string) (*LineScanner, error)

	// 列出 path 的直接子目录名。没有子目录时返回空切片
	ReadSubdirs(path string) ([]string, error)

	// 带重试地覆写文件内容。只在 EINTR 时重试，最多 retries 次。
	// 打开失败时错误包装 ErrOpen，写入失败时包装 ErrWrite
	SafeWriteWithRetry(retries int, content string, path string) (int, error)

	// 事件通知相关的 fd 原语
	Eventfd(initval uint, flags int) (int, error)
	EpollCreate() (int, error)
	EpollCtl(epfd int, op int, fd int, event *unix.EpollEvent) error
	EpollWait(epfd int, events []unix.EpollEvent, msec int) (int, error)
	Open(path string, flags int) (int, error)
	Close(fd int) error
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
}

// 生产实现，直接落到系统调用上
type realAPI struct{}

// New 返回真实的内核接口实现
func New() API {
	return &realAPI{}
}

func (*realAPI) MkDir(path string) error {
	return os.Mkdir(path, 0755)
}

func (*realAPI) RmDir(path string) error {
	return unix.Rmdir(path)
}

func (*realAPI) Access(path string, mode uint32) bool {
	return unix.Access(path, mode) == nil
}

func (*realAPI) ReadFileToString(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (*realAPI) OpenLines(path string) (*LineScanner, error) {
	return openLines(path)
}

func (*realAPI) ReadSubdirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (*realAPI) SafeWriteWithRetry(retries int, content string, path string) (int, error) {
	// 不带 O_CREAT：cgroup 控制文件由内核提供，
	// 文件不存在说明这个内核不支持对应特性
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	var lastErr error
	for i := 0; i < retries; i++ {
		n, err := f.Write([]byte(content))
		if err == nil {
			return n, nil
		}
		lastErr = err
		// 只有被信号打断的写才值得重试
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrWrite, lastErr)
}

func (*realAPI) Eventfd(initval uint, flags int) (int, error) {
	return unix.Eventfd(initval, flags)
}

func (*realAPI) EpollCreate() (int, error) {
	return unix.EpollCreate1(unix.EPOLL_CLOEXEC)
}

func (*realAPI) EpollCtl(epfd int, op int, fd int, event *unix.EpollEvent) error {
	return unix.EpollCtl(epfd, op, fd, event)
}

func (*realAPI) EpollWait(epfd int, events []unix.EpollEvent, msec int) (int, error) {
	for {
		n, err := unix.EpollWait(epfd, events, msec)
		// 等待被信号打断时重新进入等待
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func (*realAPI) Open(path string, flags int) (int, error) {
	return unix.Open(path, flags, 0)
}

func (*realAPI) Close(fd int) error {
	return unix.Close(fd)
}

func (*realAPI) Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func (*realAPI) Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}
