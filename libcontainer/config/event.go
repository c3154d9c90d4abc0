package config

// EventSpec 描述一次通知注册想订阅的内核事件。
// 恰好设置一个成员；设置零个或多个都会被拒绝
type EventSpec struct {
	// 订阅 OOM 事件
	Oom *OomEvent `json:"oom,omitempty"`

	// 订阅内存用量越过阈值的事件
	MemoryThreshold *MemoryThresholdEvent `json:"memoryThreshold,omitempty"`
}

type OomEvent struct{}

type MemoryThresholdEvent struct {
	// 阈值（字节）
	Usage uint64 `json:"usage"`
}

// NumEvents 返回 spec 中被设置的事件数
func (e *EventSpec) NumEvents() int {
	n := 0
	if e.Oom != nil {
		n++
	}
	if e.MemoryThreshold != nil {
		n++
	}
	return n
}
