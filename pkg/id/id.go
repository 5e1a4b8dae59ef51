// Package id 生成按时间排序的 ULID，用于决策周期与事件编号。
package id

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// New 当前时间的 ULID。同一毫秒内单调递增，并发安全
func New() string {
	return ulid.Make().String()
}

// NewAt 以指定时间生成
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Time 解析 ULID 携带的毫秒时间戳
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
