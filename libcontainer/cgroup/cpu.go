package cgroup

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// CPU 层级的控制文件
const (
	cpuSharesFile    = "cpu.shares"
	cpuQuotaFile     = "cpu.cfs_quota_us"
	cpuPeriodFile    = "cpu.cfs_period_us"
	cpuLatencyFile   = "cpu.latency"
	cpuHistogramFile = "cpu.histogram"
	cpuStatFile      = "cpu.stat"

	cpuacctUsageFile  = "cpuacct.usage"
	cpuacctStatFile   = "cpuacct.stat"
	cpuacctPerCpuFile = "cpuacct.usage_percpu"
)

const (
	// cpu.shares 的默认值与内核下限
	defaultCpuShares = 1024
	minCpuShares     = 2

	// cpu.cfs_period_us 的内核默认值，period 文件读不到时用它换算
	defaultCfsPeriodUs = 100000

	// cfs_quota_us 的不限制取值
	unlimitedCfsQuota = -1
)

// 规格里的 CPU 量纲是每秒毫核，1000 = 一个整核
func sharesForLimit(limit uint64) int64 {
	shares := int64(limit) * 1024 / 1000
	if shares < minCpuShares {
		shares = minCpuShares
	}
	return shares
}

func limitForShares(shares int64) uint64 {
	if shares < 0 {
		return 0
	}
	return uint64(shares) * 1000 / 1024
}

// cpuHandler 独占一个 cpu controller 和一个 cpuacct controller，
// 两个层级使用同一个相对落点
type cpuHandler struct {
	name      string
	cpu       *Controller
	acct      *Controller
	destroyed bool
}

func (h *cpuHandler) Resource() config.ResourceType { return config.ResourceCpu }
func (h *cpuHandler) ContainerName() string         { return h.name }

func (h *cpuHandler) Update(spec *config.ContainerSpec, policy config.UpdatePolicy) error {
	s := cpuSpecOf(spec)

	// 调度延迟等级创建后不可变更；内核不支持该文件时整体按无操作放过
	if err := h.checkLatency(s.Latency); err != nil {
		return err
	}

	if s.Limit != nil {
		if err := h.cpu.SetParamInt(cpuSharesFile, sharesForLimit(*s.Limit)); err != nil {
			return err
		}
	} else if policy == config.UpdateReplace {
		if err := ignoreNotFound(h.cpu.SetParamInt(cpuSharesFile, defaultCpuShares)); err != nil {
			return err
		}
	}

	if s.MaxLimit != nil {
		quota, err := h.quotaForMaxLimit(*s.MaxLimit)
		if err != nil {
			return err
		}
		if err := h.cpu.SetParamInt(cpuQuotaFile, quota); err != nil {
			return err
		}
	} else if policy == config.UpdateReplace {
		if err := ignoreNotFound(h.cpu.SetParamInt(cpuQuotaFile, unlimitedCfsQuota)); err != nil {
			return err
		}
	}

	return nil
}

// checkLatency 校验不可变属性：读取当前值并拒绝任何变更企图
func (h *cpuHandler) checkLatency(want *config.LatencyClass) error {
	if want == nil {
		return nil
	}
	cur, err := h.cpu.GetParamInt(cpuLatencyFile)
	if errors.Is(err, cgerrors.ErrNotFound) {
		// 这个内核没有延迟等级，按无操作放过
		return nil
	}
	if err != nil {
		return err
	}
	if config.LatencyClass(cur) != *want {
		return fmt.Errorf("scheduling latency class is immutable (current %v, requested %v): %w",
			config.LatencyClass(cur), *want, cgerrors.ErrInvalidArgument)
	}
	return nil
}

// quotaForMaxLimit 把每秒毫核的硬上限换算成当前调度周期下的配额
func (h *cpuHandler) quotaForMaxLimit(maxLimit uint64) (int64, error) {
	period, err := h.cpu.GetParamInt(cpuPeriodFile)
	if errors.Is(err, cgerrors.ErrNotFound) {
		period = defaultCfsPeriodUs
	} else if err != nil {
		return 0, err
	}
	return int64(maxLimit) * period / 1000, nil
}

func (h *cpuHandler) Stats(t config.StatsType, stats *config.ContainerStats) error {
	cs := &config.CpuStats{}

	usage, err := h.acct.GetParamInt(cpuacctUsageFile)
	if err != nil {
		return err
	}
	cs.Usage = uint64(usage)

	if t == config.StatsFull {
		thr, err := h.readThrottling()
		if err != nil {
			return err
		}
		cs.Throttling = thr

		hist, err := h.readHistograms()
		if err != nil {
			return err
		}
		cs.Histograms = hist
	}

	stats.Cpu = cs
	return nil
}

// readThrottling 解析 cpu.stat。文件缺失时整项省略
func (h *cpuHandler) readThrottling() (*config.ThrottlingStats, error) {
	lines, err := h.cpu.GetParamLines(cpuStatFile)
	if errors.Is(err, cgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer lines.Close()

	thr := &config.ThrottlingStats{}
	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s line %q: %w", cpuStatFile, lines.Text(), cgerrors.ErrFailedPrecondition)
		}
		switch fields[0] {
		case "nr_periods":
			thr.Periods = v
		case "nr_throttled":
			thr.ThrottledRuns = v
		case "throttled_time":
			thr.ThrottledTime = v
		}
	}
	return thr, nil
}

// readHistograms 解析 cpu.histogram，每行是 "<直方图名> <桶边界> <计数>"。
// 文件缺失（主线内核）时整项省略
func (h *cpuHandler) readHistograms() ([]config.HistogramStats, error) {
	lines, err := h.cpu.GetParamLines(cpuHistogramFile)
	if errors.Is(err, cgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer lines.Close()

	byName := make(map[string]map[uint64]uint64)
	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) != 3 {
			continue
		}
		bucket, err1 := strconv.ParseUint(fields[1], 10, 64)
		count, err2 := strconv.ParseUint(fields[2], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("parse %s line %q: %w", cpuHistogramFile, lines.Text(), cgerrors.ErrFailedPrecondition)
		}
		if byName[fields[0]] == nil {
			byName[fields[0]] = make(map[uint64]uint64)
		}
		byName[fields[0]][bucket] = count
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	hists := make([]config.HistogramStats, 0, len(names))
	for _, name := range names {
		hists = append(hists, config.HistogramStats{Name: name, Buckets: byName[name]})
	}
	return hists, nil
}

func (h *cpuHandler) Spec(spec *config.ContainerSpec) error {
	cs := &config.CpuSpec{}

	shares, err := h.cpu.GetParamInt(cpuSharesFile)
	if err == nil {
		limit := limitForShares(shares)
		cs.Limit = &limit
	} else if !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	quota, err := h.cpu.GetParamInt(cpuQuotaFile)
	if err == nil && quota > 0 {
		period, err := h.cpu.GetParamInt(cpuPeriodFile)
		if errors.Is(err, cgerrors.ErrNotFound) {
			period = defaultCfsPeriodUs
		} else if err != nil {
			return err
		}
		maxLimit := uint64(quota) * 1000 / uint64(period)
		cs.MaxLimit = &maxLimit
	} else if err != nil && !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	latency, err := h.cpu.GetParamInt(cpuLatencyFile)
	if err == nil {
		l := config.LatencyClass(latency)
		cs.Latency = &l
	} else if !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	spec.Cpu = cs
	return nil
}

func (h *cpuHandler) RegisterNotification(es *config.EventSpec, cb notify.Callback) (notify.Handle, error) {
	if es == nil || es.NumEvents() != 1 {
		return 0, fmt.Errorf("event spec must request exactly one event: %w", cgerrors.ErrInvalidArgument)
	}
	return 0, fmt.Errorf("cpu resource has no notifiable events: %w", cgerrors.ErrUnimplemented)
}

func (h *cpuHandler) UnregisterNotification(handle notify.Handle) error {
	return h.cpu.UnregisterNotification(handle)
}

// Enter 把线程同时移入 cpu 和 cpuacct 两个层级
func (h *cpuHandler) Enter(pid int) error {
	if err := h.cpu.Enter(pid); err != nil {
		return err
	}
	return h.acct.Enter(pid)
}

func (h *cpuHandler) ListSubcontainers() ([]string, error) {
	return h.cpu.GetSubcontainers()
}

// Destroy 以任意顺序销毁独占的 controller，容忍先前的部分销毁。
// handler 层面幂等
func (h *cpuHandler) Destroy() error {
	if h.destroyed {
		return nil
	}
	if err := ignoreNotFound(h.acct.Destroy()); err != nil {
		return err
	}
	if err := ignoreNotFound(h.cpu.Destroy()); err != nil {
		return err
	}
	h.destroyed = true
	return nil
}

// cpuSpecOf 取出 spec 的 CPU 部分，缺席时给零值
// （REPLACE 语义下零值意味着全部字段重置为默认）
func cpuSpecOf(spec *config.ContainerSpec) *config.CpuSpec {
	if spec != nil && spec.Cpu != nil {
		return spec.Cpu
	}
	return &config.CpuSpec{}
}

// cpuFactory 负责 CPU 资源的层级解析与 handler 生产。
// CPU 是路径解析的非平凡情形：batch 前缀、首段剥离都只在这里出现
type cpuFactory struct {
	kernel     kernel.API
	dispatcher *notify.Dispatcher
	cpu        *Hierarchy
	acct       *Hierarchy
}

func newCpuFactory(k kernel.API, d *notify.Dispatcher, cpu, acct *Hierarchy) *cpuFactory {
	return &cpuFactory{kernel: k, dispatcher: d, cpu: cpu, acct: acct}
}

func (f *cpuFactory) Resource() config.ResourceType { return config.ResourceCpu }

func (f *cpuFactory) Get(name string) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	cpuPath, err := f.cpu.ResolveWithBatch(name)
	if err != nil {
		return nil, err
	}
	cpuCtrl, err := attachController(config.ResourceCpu, cpuPath, true, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	acctCtrl, err := attachController(config.ResourceCpuAcct, f.acctPathFor(cpuPath), true, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	return &cpuHandler{name: name, cpu: cpuCtrl, acct: acctCtrl}, nil
}

func (f *cpuFactory) Create(name string, spec *config.ContainerSpec) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s := cpuSpecOf(spec)

	// batch 与否只在顶层由自己声明的等级决定；
	// 嵌套容器继承父容器解析出的根（CreateTarget 内部处理）
	batch := s.Latency != nil && *s.Latency == config.LatencyBestEffort
	cpuTarget, err := f.cpu.CreateTarget(name, batch)
	if err != nil {
		return nil, err
	}

	cpuCtrl, err := createController(config.ResourceCpu, cpuTarget, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	acctCtrl, err := createController(config.ResourceCpuAcct, f.acctPathFor(cpuTarget), f.kernel, f.dispatcher)
	if err != nil {
		// 多个 controller 的创建不是事务：已建好的 cpu 目录留在原地
		// 由调用方清理，错误原样向上传播
		log.Warnf("cpuacct creation failed for %s, leaving cpu cgroup %s in place", name, cpuTarget)
		return nil, err
	}

	h := &cpuHandler{name: name, cpu: cpuCtrl, acct: acctCtrl}

	// 一次性设置：延迟等级与直方图配置。
	// 两者在主线内核上都不存在，忽略 NotFound
	if s.Latency != nil {
		if err := ignoreNotFound(cpuCtrl.SetParamInt(cpuLatencyFile, int64(*s.Latency))); err != nil {
			return nil, err
		}
	}
	if len(s.HistogramBuckets) > 0 {
		if err := ignoreNotFound(cpuCtrl.SetParamString(cpuHistogramFile, formatBuckets(s.HistogramBuckets))); err != nil {
			return nil, err
		}
	}

	if err := h.Update(spec, config.UpdateDiff); err != nil {
		return nil, err
	}
	return h, nil
}

// InitMachine 预创建 batch 保留根（cpu 和 cpuacct 两个层级），
// 已存在视为成功后继续后续设置
func (f *cpuFactory) InitMachine(spec *config.MachineSpec) error {
	batchCpu := path.Join(f.cpu.Root(), batchSubsystem)
	if err := ensureCgroupDir(f.kernel, batchCpu); err != nil {
		return err
	}
	if err := ensureCgroupDir(f.kernel, path.Join(f.acct.Root(), batchSubsystem)); err != nil {
		return err
	}

	if spec != nil && len(spec.CpuHistogramBuckets) > 0 {
		// 续接设置要通过 Get 语义拿到已存在的目录：
		// batch 根是共享目录，绑定为非拥有，销毁时不会误删
		ctrl, err := attachController(config.ResourceCpu, batchCpu, false, f.kernel, f.dispatcher)
		if err != nil {
			return err
		}
		if err := ignoreNotFound(ctrl.SetParamString(cpuHistogramFile, formatBuckets(spec.CpuHistogramBuckets))); err != nil {
			return err
		}
	}
	return nil
}

// acctPathFor 把 cpu 层级下的落点镜像到 cpuacct 层级
func (f *cpuFactory) acctPathFor(cpuPath string) string {
	return path.Join(f.acct.Root(), f.cpu.RelativeOf(cpuPath))
}

func formatBuckets(buckets []uint64) string {
	parts := make([]string, len(buckets))
	for i, b := range buckets {
		parts[i] = strconv.FormatUint(b, 10)
	}
	return strings.Join(parts, " ")
}
