package cgroup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"m-contain/libcontainer/cgerrors"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// blkio 层级的控制文件
const (
	blkioWeightFile       = "blkio.weight"
	blkioWeightDeviceFile = "blkio.weight_device"
	blkioReadBpsFile      = "blkio.throttle.read_bps_device"
	blkioWriteBpsFile     = "blkio.throttle.write_bps_device"
	blkioReadIopsFile     = "blkio.throttle.read_iops_device"
	blkioWriteIopsFile    = "blkio.throttle.write_iops_device"
	blkioServiceBytesFile = "blkio.throttle.io_service_bytes"
	blkioServicedFile     = "blkio.throttle.io_serviced"
	blkioTimeFile         = "blkio.time"
	blkioSectorsFile      = "blkio.sectors"
)

// CFQ 的默认权重
const defaultBlkioWeight = 500

type blkioHandler struct {
	name      string
	blkio     *Controller
	destroyed bool
}

func (h *blkioHandler) Resource() config.ResourceType { return config.ResourceBlkio }
func (h *blkioHandler) ContainerName() string         { return h.name }

func (h *blkioHandler) Update(spec *config.ContainerSpec, policy config.UpdatePolicy) error {
	s := blkioSpecOf(spec)
	replace := policy == config.UpdateReplace

	if s.Weight != nil {
		if err := h.blkio.SetParamInt(blkioWeightFile, int64(*s.Weight)); err != nil {
			return err
		}
	} else if replace {
		if err := ignoreNotFound(h.blkio.SetParamInt(blkioWeightFile, defaultBlkioWeight)); err != nil {
			return err
		}
	}

	if len(s.WeightDevice) > 0 {
		for _, w := range s.WeightDevice {
			line := fmt.Sprintf("%d:%d %d", w.Device.Major, w.Device.Minor, w.Weight)
			if err := ignoreNotFound(h.blkio.SetParamString(blkioWeightDeviceFile, line)); err != nil {
				return err
			}
		}
	} else if replace {
		if err := h.clearDeviceEntries(blkioWeightDeviceFile); err != nil {
			return err
		}
	}

	for _, t := range []struct {
		file   string
		limits []config.DeviceLimit
	}{
		{blkioReadBpsFile, s.ThrottleReadBps},
		{blkioWriteBpsFile, s.ThrottleWriteBps},
		{blkioReadIopsFile, s.ThrottleReadIops},
		{blkioWriteIopsFile, s.ThrottleWriteIops},
	} {
		if len(t.limits) > 0 {
			for _, l := range t.limits {
				line := fmt.Sprintf("%d:%d %d", l.Device.Major, l.Device.Minor, l.Value)
				if err := h.blkio.SetParamString(t.file, line); err != nil {
					return err
				}
			}
		} else if replace {
			if err := h.clearDeviceEntries(t.file); err != nil {
				return err
			}
		}
	}

	return nil
}

// clearDeviceEntries 把文件里已配置的每个设备写回 0（0 = 取消该设备的配置）。
// 文件缺失按可选特性放过
func (h *blkioHandler) clearDeviceEntries(file string) error {
	lines, err := h.blkio.GetParamLines(file)
	if errors.Is(err, cgerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var devices []string
	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) < 2 || !strings.Contains(fields[0], ":") {
			continue
		}
		devices = append(devices, fields[0])
	}
	lines.Close()

	for _, dev := range devices {
		if err := ignoreNotFound(h.blkio.SetParamString(file, dev+" 0")); err != nil {
			return err
		}
	}
	return nil
}

func (h *blkioHandler) Stats(t config.StatsType, stats *config.ContainerStats) error {
	bs := &config.BlkioStats{}

	// 限流层的计数在没开 CONFIG_BLK_DEV_THROTTLING 的内核上不存在，
	// 缺失时省略对应项
	serviceBytes, err := h.readEntries(blkioServiceBytesFile)
	if err != nil {
		return err
	}
	bs.ServiceBytes = serviceBytes

	serviced, err := h.readEntries(blkioServicedFile)
	if err != nil {
		return err
	}
	bs.Serviced = serviced

	if t == config.StatsFull {
		timeEntries, err := h.readEntries(blkioTimeFile)
		if err != nil {
			return err
		}
		bs.Time = timeEntries

		sectors, err := h.readEntries(blkioSectorsFile)
		if err != nil {
			return err
		}
		bs.Sectors = sectors
	}

	stats.BlockIo = bs
	return nil
}

// readEntries 解析 blkio 的按设备统计。
// 行形如 "8:0 Read 1024" 或 "8:0 1024"，汇总行 "Total N" 被跳过。
// 文件缺失时返回空结果
func (h *blkioHandler) readEntries(file string) ([]config.BlkioEntry, error) {
	lines, err := h.blkio.GetParamLines(file)
	if errors.Is(err, cgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer lines.Close()

	var entries []config.BlkioEntry
	for lines.Scan() {
		fields := strings.Fields(lines.Text())
		if len(fields) < 2 || !strings.Contains(fields[0], ":") {
			continue
		}
		dev, err := parseDeviceID(fields[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s line %q: %w", file, lines.Text(), cgerrors.ErrFailedPrecondition)
		}
		entry := config.BlkioEntry{Device: dev}
		var raw string
		if len(fields) == 2 {
			raw = fields[1]
		} else {
			entry.Op = fields[1]
			raw = fields[2]
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s line %q: %w", file, lines.Text(), cgerrors.ErrFailedPrecondition)
		}
		entry.Value = v
		entries = append(entries, entry)
	}

	// 结果顺序与内核输出顺序解耦，保证确定性
	slices.SortFunc(entries, func(a, b config.BlkioEntry) int {
		if a.Device.Major != b.Device.Major {
			return int(a.Device.Major) - int(b.Device.Major)
		}
		if a.Device.Minor != b.Device.Minor {
			return int(a.Device.Minor) - int(b.Device.Minor)
		}
		return strings.Compare(a.Op, b.Op)
	})
	return entries, nil
}

func (h *blkioHandler) Spec(spec *config.ContainerSpec) error {
	bs := &config.BlkioSpec{}

	weight, err := h.blkio.GetParamInt(blkioWeightFile)
	if err == nil {
		w := uint64(weight)
		bs.Weight = &w
	} else if !errors.Is(err, cgerrors.ErrNotFound) {
		return err
	}

	weightDevices, err := h.readDeviceValues(blkioWeightDeviceFile)
	if err != nil {
		return err
	}
	for _, d := range weightDevices {
		bs.WeightDevice = append(bs.WeightDevice, config.DeviceWeight{Device: d.Device, Weight: d.Value})
	}

	for _, t := range []struct {
		file string
		dst  *[]config.DeviceLimit
	}{
		{blkioReadBpsFile, &bs.ThrottleReadBps},
		{blkioWriteBpsFile, &bs.ThrottleWriteBps},
		{blkioReadIopsFile, &bs.ThrottleReadIops},
		{blkioWriteIopsFile, &bs.ThrottleWriteIops},
	} {
		limits, err := h.readDeviceValues(t.file)
		if err != nil {
			return err
		}
		*t.dst = limits
	}

	spec.BlockIo = bs
	return nil
}

// readDeviceValues 解析 "M:N value" 形式的配置文件。
// 文件缺失时返回空结果
func (h *blkioHandler) readDeviceValues(file string) ([]config.DeviceLimit, error) {
	entries, err := h.readEntries(file)
	if err != nil {
		return nil, err
	}
	limits := make([]config.DeviceLimit, 0, len(entries))
	for _, e := range entries {
		limits = append(limits, config.DeviceLimit{Device: e.Device, Value: e.Value})
	}
	if len(limits) == 0 {
		return nil, nil
	}
	return limits, nil
}

func (h *blkioHandler) RegisterNotification(es *config.EventSpec, cb notify.Callback) (notify.Handle, error) {
	if es == nil || es.NumEvents() != 1 {
		return 0, fmt.Errorf("event spec must request exactly one event: %w", cgerrors.ErrInvalidArgument)
	}
	return 0, fmt.Errorf("blkio resource has no notifiable events: %w", cgerrors.ErrUnimplemented)
}

func (h *blkioHandler) UnregisterNotification(handle notify.Handle) error {
	return h.blkio.UnregisterNotification(handle)
}

func (h *blkioHandler) Enter(pid int) error {
	return h.blkio.Enter(pid)
}

func (h *blkioHandler) ListSubcontainers() ([]string, error) {
	return h.blkio.GetSubcontainers()
}

func (h *blkioHandler) Destroy() error {
	if h.destroyed {
		return nil
	}
	if err := ignoreNotFound(h.blkio.Destroy()); err != nil {
		return err
	}
	h.destroyed = true
	return nil
}

func blkioSpecOf(spec *config.ContainerSpec) *config.BlkioSpec {
	if spec != nil && spec.BlockIo != nil {
		return spec.BlockIo
	}
	return &config.BlkioSpec{}
}

func parseDeviceID(s string) (config.DeviceID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return config.DeviceID{}, fmt.Errorf("bad device id %q", s)
	}
	major, err1 := strconv.ParseUint(parts[0], 10, 64)
	minor, err2 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return config.DeviceID{}, fmt.Errorf("bad device id %q", s)
	}
	return config.DeviceID{Major: major, Minor: minor}, nil
}

type blkioFactory struct {
	kernel     kernel.API
	dispatcher *notify.Dispatcher
	hier       *Hierarchy
}

func newBlkioFactory(k kernel.API, d *notify.Dispatcher, h *Hierarchy) *blkioFactory {
	return &blkioFactory{kernel: k, dispatcher: d, hier: h}
}

func (f *blkioFactory) Resource() config.ResourceType { return config.ResourceBlkio }

func (f *blkioFactory) Get(name string) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p, err := f.hier.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctrl, err := attachController(config.ResourceBlkio, p, true, f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	return &blkioHandler{name: name, blkio: ctrl}, nil
}

func (f *blkioFactory) Create(name string, spec *config.ContainerSpec) (ResourceHandler, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ctrl, err := createController(config.ResourceBlkio, f.hier.Path(name), f.kernel, f.dispatcher)
	if err != nil {
		return nil, err
	}
	h := &blkioHandler{name: name, blkio: ctrl}
	if err := h.Update(spec, config.UpdateDiff); err != nil {
		return nil, err
	}
	return h, nil
}

// blkio 没有机器级的一次性设置
func (f *blkioFactory) InitMachine(*config.MachineSpec) error {
	return nil
}
