//go:build !unix

package bootstrap

import "errors"

// ErrAlreadyRunning 已有实例持有锁
var ErrAlreadyRunning = errors.New("agent 已在运行")

// InstanceLock 非 unix 平台不加锁
type InstanceLock struct{}

// AcquireLock 非 unix 平台直接返回空锁
func AcquireLock(string) (*InstanceLock, error) {
	return &InstanceLock{}, nil
}

// Release 释放锁
func (l *InstanceLock) Release() error {
	return nil
}
