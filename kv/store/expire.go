package store

import (
	"encoding/binary"
	"time"
)

// 嵌入式存储没有原生 TTL，值前 8 字节存放过期时间（UnixNano，0 表示永不过期）
const expireHeaderSize = 8

func encodeExpire(value []byte, expiration time.Duration) []byte {
	buf := make([]byte, expireHeaderSize+len(value))
	if expiration > 0 {
		binary.BigEndian.PutUint64(buf, uint64(time.Now().Add(expiration).UnixNano()))
	}
	copy(buf[expireHeaderSize:], value)
	return buf
}

// decodeExpire 返回值本身以及是否已过期
func decodeExpire(buf []byte) ([]byte, bool) {
	if len(buf) < expireHeaderSize {
		return nil, true
	}
	expireAt := int64(binary.BigEndian.Uint64(buf))
	if expireAt != 0 && time.Now().UnixNano() >= expireAt {
		return nil, true
	}
	value := make([]byte, len(buf)-expireHeaderSize)
	copy(value, buf[expireHeaderSize:])
	return value, false
}

// prefixUpperBound 返回大于所有以 prefix 开头的键的最小键，prefix 全为 0xff 时返回 nil
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
