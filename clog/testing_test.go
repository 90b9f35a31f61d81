package clog

import "bytes"

// withBuffer 测试专用选项，将日志输出重定向到缓冲区
func withBuffer(buf *bytes.Buffer) Option {
	return func(o *options) {
		o.buffer = buf
	}
}
