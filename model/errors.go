package model

import "errors"

var (
	// ErrQueueFull 等待处理槽位超时
	ErrQueueFull = errors.New("processing queue is full")
	// ErrUnknownStrategy 未注册的检测策略
	ErrUnknownStrategy = errors.New("unknown detection strategy")
	// ErrUndecodableImage 上传内容无法解码为图像
	ErrUndecodableImage = errors.New("image could not be decoded")
)
