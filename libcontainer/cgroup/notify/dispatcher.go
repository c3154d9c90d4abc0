package notify

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/kernel"
)

// Handle 标识一次活跃的通知注册，进程内唯一。
// 句柄单调分配，注销后的数值不会再指向任何活跃注册
type Handle uint64

// Callback 在事件到达时被派发协程调用。
// 必须可以被重复调用（同一事件每次发生都会触发），
// 并且不能假定运行在注册者自己的协程上；按约定它应当快速返回
type Callback func(cgroupPath string, err error)

// 向 cgroup.event_control 写注册行时的重试预算
const eventControlRetries = 3

type registration struct {
	handle     Handle
	cgroupPath string
	efd        int
	cb         Callback
}

// Dispatcher 持有所有活跃的内核 event-fd，在后台协程里做多路等待，
// 事件到达时调用对应的回调。整个进程构造一个，Stop 时整体回收
type Dispatcher struct {
	kernel kernel.API

	// 保护句柄分配、注册表和等待集合的变更
	mu      sync.Mutex
	regs    map[Handle]*registration
	byFd    map[int]Handle
	next    Handle
	stopped bool

	epfd   int
	wakefd int
	done   chan struct{}
}

// NewDispatcher 创建派发器并启动后台等待循环
func NewDispatcher(k kernel.API) (*Dispatcher, error) {
	epfd, err := k.EpollCreate()
	if err != nil {
		return nil, fmt.Errorf("create epoll fd: %v", err)
	}

	// wakefd 只用来在 Stop 时唤醒阻塞中的 EpollWait
	wakefd, err := k.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = k.Close(epfd)
		return nil, fmt.Errorf("create wake eventfd: %v", err)
	}
	if err := k.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakefd),
	}); err != nil {
		_ = k.Close(wakefd)
		_ = k.Close(epfd)
		return nil, fmt.Errorf("add wake eventfd to epoll: %v", err)
	}

	d := &Dispatcher{
		kernel: k,
		regs:   make(map[Handle]*registration),
		byFd:   make(map[int]Handle),
		next:   1,
		epfd:   epfd,
		wakefd: wakefd,
		done:   make(chan struct{}),
	}
	go d.loop()
	return d, nil
}

// Register 为 cgroupPath/file 上的内核事件建立一个通知注册。
// args 的格式由具体事件决定（比如内存阈值的字节数），可以为空。
// 返回的句柄在 Unregister 之前一直有效，同一事件每次发生都会触发回调
func (d *Dispatcher) Register(cgroupPath, file, args string, cb Callback) (Handle, error) {
	efd, err := d.kernel.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return 0, fmt.Errorf("create eventfd: %v", err)
	}

	if err := d.arm(cgroupPath, file, args, efd); err != nil {
		_ = d.kernel.Close(efd)
		registerErrors.Inc()
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		_ = d.kernel.Close(efd)
		return 0, fmt.Errorf("dispatcher stopped: %w", cgerrors.ErrUnavailable)
	}

	if err := d.kernel.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(efd),
	}); err != nil {
		_ = d.kernel.Close(efd)
		registerErrors.Inc()
		return 0, fmt.Errorf("add eventfd to epoll: %v", err)
	}

	h := d.next
	d.next++
	reg := &registration{
		handle:     h,
		cgroupPath: cgroupPath,
		efd:        efd,
		cb:         cb,
	}
	d.regs[h] = reg
	d.byFd[efd] = h
	activeRegistrations.Inc()

	log.Debugf("registered notification %d on %s/%s", h, cgroupPath, file)
	return h, nil
}

// arm 把 "eventfd 控制文件fd 参数" 写进 cgroup.event_control，
// 让内核把事件投递到我们的 eventfd 上
func (d *Dispatcher) arm(cgroupPath, file, args string, efd int) error {
	cfd, err := d.kernel.Open(path.Join(cgroupPath, file), unix.O_RDONLY)
	if err != nil {
		return fmt.Errorf("open control file %s: %v: %w", file, err, cgerrors.ErrNotFound)
	}
	defer d.kernel.Close(cfd)

	line := fmt.Sprintf("%d %d", efd, cfd)
	if args != "" {
		line = line + " " + args
	}
	controlPath := path.Join(cgroupPath, "cgroup.event_control")
	if _, err := d.kernel.SafeWriteWithRetry(eventControlRetries, line, controlPath); err != nil {
		if errors.Is(err, kernel.ErrOpen) {
			return fmt.Errorf("open %s: %v: %w", controlPath, err, cgerrors.ErrNotFound)
		}
		return fmt.Errorf("write %s: %v: %w", controlPath, err, cgerrors.ErrUnavailable)
	}
	return nil
}

// Unregister 将句柄对应的注册移出等待集合并关闭它的 eventfd。
// 未知或已注销的句柄返回 NotFound。
// 与正在进行的派发并发调用是安全的：派发循环会把消失的句柄当作
// 一次多余的投递丢弃，而不会报错
func (d *Dispatcher) Unregister(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.regs[h]
	if !ok {
		return fmt.Errorf("unknown notification handle %d: %w", h, cgerrors.ErrNotFound)
	}
	d.removeLocked(reg)
	return nil
}

// UnregisterAll 注销某个 cgroup 路径下的全部注册。
// 容器销毁时由其所属的 controller 调用
func (d *Dispatcher) UnregisterAll(cgroupPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, reg := range d.regs {
		if reg.cgroupPath == cgroupPath || strings.HasPrefix(reg.cgroupPath, cgroupPath+"/") {
			d.removeLocked(reg)
		}
	}
}

// 调用方必须持有 d.mu
func (d *Dispatcher) removeLocked(reg *registration) {
	_ = d.kernel.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, reg.efd, nil)
	_ = d.kernel.Close(reg.efd)
	delete(d.regs, reg.handle)
	delete(d.byFd, reg.efd)
	activeRegistrations.Dec()
	log.Debugf("unregistered notification %d on %s", reg.handle, reg.cgroupPath)
}

// Stop 注销所有注册并终止派发循环。
// 返回时后台协程已经退出；正在执行中的回调不会被强行打断
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	for _, reg := range d.regs {
		d.removeLocked(reg)
	}
	d.mu.Unlock()

	// 唤醒阻塞中的 EpollWait
	var one = []byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, _ = d.kernel.Write(d.wakefd, one)

	<-d.done
	_ = d.kernel.Close(d.wakefd)
	_ = d.kernel.Close(d.epfd)
}

// 后台派发循环：阻塞等待所有活跃的 eventfd，
// 被唤醒后查表并调用回调。单个回调只影响自己注册的及时性
func (d *Dispatcher) loop() {
	defer close(d.done)

	events := make([]unix.EpollEvent, 16)
	for {
		n, err := d.kernel.EpollWait(d.epfd, events, -1)
		if err != nil {
			log.Errorf("notification wait failed: %v", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == d.wakefd {
				if d.isStopped() {
					return
				}
				d.drain(fd)
				continue
			}
			d.dispatch(fd)
		}
	}
}

func (d *Dispatcher) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// dispatch 处理一个就绪的 eventfd。
// 查表和排空 fd 在锁内完成，这样 Unregister 不会在我们读 fd 时关闭它；
// 回调在锁外调用，避免把注册表的锁暴露给外部代码
func (d *Dispatcher) dispatch(fd int) {
	d.mu.Lock()
	h, ok := d.byFd[fd]
	if !ok {
		// 注册在唤醒与派发之间被注销了，丢弃这次投递
		d.mu.Unlock()
		droppedDeliveries.Inc()
		return
	}
	reg := d.regs[h]
	d.drain(fd)
	cb := reg.cb
	cgroupPath := reg.cgroupPath
	d.mu.Unlock()

	deliveries.Inc()
	cb(cgroupPath, nil)
}

// drain 读掉 eventfd 的计数，让它回到未就绪状态
func (d *Dispatcher) drain(fd int) {
	var buf [8]byte
	_, _ = d.kernel.Read(fd, buf[:])
}
