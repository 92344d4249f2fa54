package dryrun

import "errors"

// ErrInvalidOptions 迁移选项未通过校验
var ErrInvalidOptions = errors.New("invalid migration options")
