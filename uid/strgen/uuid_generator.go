package strgen

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type UUIDGeneratorOptions struct {
	Version string `cfg:"version" def:"v4" validate:"omitempty,oneof=v1 v4 v6 v7"`

	// 是否包含连字符
	WithHyphens bool `cfg:"withHyphens"`
}

type UUIDGenerator struct {
	version     string
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDGeneratorOptions) (*UUIDGenerator, error) {
	version := options.Version
	switch version {
	case "":
		version = "v4"
	case "v1", "v4", "v6", "v7":
	default:
		return nil, errors.Errorf("unsupported uuid version: %s", version)
	}

	return &UUIDGenerator{
		version:     version,
		withHyphens: options.WithHyphens,
	}, nil
}

// NewUUIDGenerator 返回带连字符的 v4 生成器
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{version: "v4", withHyphens: true}
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	switch g.version {
	case "v1":
		u = uuid.Must(uuid.NewUUID())
	case "v6":
		u = uuid.Must(uuid.NewV6())
	case "v7":
		u = uuid.Must(uuid.NewV7())
	default:
		u = uuid.New()
	}

	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}
