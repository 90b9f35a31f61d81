package store

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrInvalidConfig 配置不合法。
	ErrInvalidConfig = xerrors.New("store: invalid config")
	// ErrNilConnector 缺少必需的连接器。
	ErrNilConnector = xerrors.New("store: nil connector")
	// ErrClosed 存储已关闭。
	ErrClosed = xerrors.New("store: closed")
)
