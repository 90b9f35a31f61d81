package connector

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrNotConnected 连接尚未建立。
	ErrNotConnected = xerrors.New("connector: not connected")
	// ErrAlreadyClosed 连接已关闭。
	ErrAlreadyClosed = xerrors.New("connector: already closed")
	// ErrConnection 连接建立或通信失败。
	ErrConnection = xerrors.New("connector: connection failed")
	// ErrConfig 配置不合法。
	ErrConfig = xerrors.New("connector: invalid config")
	// ErrHealthCheck 健康检查失败。
	ErrHealthCheck = xerrors.New("connector: health check failed")
)
