package intgen

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

type SnowflakeGeneratorOptions struct {
	// 机器 ID，为 nil 时从本机 IPv4 地址的低 10 位获取
	MachineID *int64 `cfg:"machineID"`

	// 起始纪元
	Epoch time.Time `cfg:"epoch" def:"2020-01-01T00:00:00Z"`
}

// SnowflakeGenerator 1 位符号位 + 41 位毫秒时间戳 + 10 位机器 ID + 12 位序列号
type SnowflakeGenerator struct {
	// 高位时间戳 + 低 12 位序列号
	state     int64
	machineID int64
	epoch     int64
}

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = (1 << sequenceBits) - 1
	maxMachineID = (1 << machineIDBits) - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

var defaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func NewSnowflakeGeneratorWithOptions(options *SnowflakeGeneratorOptions) (*SnowflakeGenerator, error) {
	var machineID int64
	if options.MachineID != nil {
		machineID = *options.MachineID
		if machineID < 0 || machineID > maxMachineID {
			return nil, errors.Errorf("machineID must be in [0, %d], got %d", maxMachineID, machineID)
		}
	} else {
		machineID = getMachineIDFromIP() & maxMachineID
	}

	epoch := options.Epoch
	if epoch.IsZero() {
		epoch = defaultEpoch
	}
	if epoch.After(time.Now()) {
		return nil, errors.Errorf("epoch %v is in the future", epoch)
	}

	return newSnowflakeGenerator(machineID, epoch.UnixMilli()), nil
}

func NewSnowflakeGenerator(machineID int64) *SnowflakeGenerator {
	return newSnowflakeGenerator(machineID&maxMachineID, defaultEpoch.UnixMilli())
}

func newSnowflakeGenerator(machineID int64, epoch int64) *SnowflakeGenerator {
	return &SnowflakeGenerator{
		state:     (time.Now().UnixMilli() - epoch) << sequenceBits,
		machineID: machineID,
		epoch:     epoch,
	}
}

func getMachineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return int64(ipv4[2])<<8 | int64(ipv4[3])
			}
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate() int64 {
	ts, seq := nextState(&g.state, func() int64 { return time.Now().UnixMilli() - g.epoch })
	return (ts << timestampShift) | (g.machineID << machineIDShift) | seq
}

// nextState 以 CAS 推进 时间戳+序列号 状态，同一毫秒内序列号耗尽时自旋到下一毫秒
func nextState(state *int64, now func() int64) (int64, int64) {
	for {
		oldState := atomic.LoadInt64(state)
		oldTimestamp := oldState >> sequenceBits
		oldSequence := oldState & maxSequence

		currentTimestamp := now()

		var newTimestamp, newSequence int64
		if currentTimestamp <= oldTimestamp {
			// 同一毫秒或时钟回拨，沿用旧时间戳
			newSequence = (oldSequence + 1) & maxSequence
			newTimestamp = oldTimestamp
			if newSequence == 0 {
				for currentTimestamp <= oldTimestamp {
					currentTimestamp = now()
				}
				newTimestamp = currentTimestamp
			}
		} else {
			newTimestamp = currentTimestamp
		}

		newState := (newTimestamp << sequenceBits) | newSequence
		if atomic.CompareAndSwapInt64(state, oldState, newState) {
			return newTimestamp, newSequence
		}
	}
}
