package cgerrors

import "errors"

// cgroup 子系统的统一错误分类。
// 调用方通过 errors.Is 判断错误类别，决定传播还是忽略
// （比如可选的内核特性缺失时返回 ErrNotFound，调用方可以选择跳过）。
var (
	// 请求的内核文件、特性或者层级不存在
	ErrNotFound = errors.New("not found")

	// 调用方传入的参数违反了前置条件
	ErrInvalidArgument = errors.New("invalid argument")

	// Create 时目标 cgroup 目录已经存在
	ErrAlreadyExists = errors.New("already exists")

	// 内核文件存在但内容无法解析，或发生了不可重试的 I/O 错误
	ErrFailedPrecondition = errors.New("failed precondition")

	// 带重试的写操作最终还是失败了
	ErrUnavailable = errors.New("unavailable")

	// 当前构建有意不实现的功能（区别于内核不支持的 ErrNotFound）
	ErrUnimplemented = errors.New("unimplemented")
)
