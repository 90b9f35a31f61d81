package config

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrValidationFailed 配置验证失败 (如加载后配置为空)。
	ErrValidationFailed = xerrors.New("config: validation failed")
)
