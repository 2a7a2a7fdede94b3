package intgen

import (
	"time"
)

type TimestampSeqGeneratorOptions struct{}

// TimestampSeqGenerator 高 52 位毫秒时间戳 + 低 12 位序列号，仅保证单进程内唯一
type TimestampSeqGenerator struct {
	state int64
}

func NewTimestampSeqGeneratorWithOptions(options *TimestampSeqGeneratorOptions) (*TimestampSeqGenerator, error) {
	return NewTimestampSeqGenerator(), nil
}

func NewTimestampSeqGenerator() *TimestampSeqGenerator {
	return &TimestampSeqGenerator{state: time.Now().UnixMilli() << sequenceBits}
}

func (g *TimestampSeqGenerator) Generate() int64 {
	ts, seq := nextState(&g.state, func() int64 { return time.Now().UnixMilli() })
	return (ts << sequenceBits) | seq
}
