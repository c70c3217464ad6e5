package service

import "errors"

var (
	ErrUserNotFound = errors.New("用户不存在")
	ErrPodNotFound  = errors.New("团队不存在")
	ErrNoUserToken  = errors.New("用户未配置 GitHub token")
	ErrNoPodToken   = errors.New("团队没有可用的 GitHub token")
)
