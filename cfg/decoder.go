package cfg

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decoder 把配置文件内容解码为 map/slice/标量组成的通用结构
type Decoder interface {
	Decode(data []byte) (any, error)
}

type YamlDecoder struct{}

func (YamlDecoder) Decode(data []byte) (any, error) {
	var result any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "yaml.Unmarshal failed")
	}
	return result, nil
}

type JsonDecoder struct{}

func (JsonDecoder) Decode(data []byte) (any, error) {
	var result any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return nil, errors.Wrap(err, "json.Decode failed")
	}
	return normalizeJSON(result), nil
}

// normalizeJSON 把 json.Number 还原为 int64 或 float64
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	}
	return v
}

type TomlDecoder struct{}

func (TomlDecoder) Decode(data []byte) (any, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "toml.Unmarshal failed")
	}
	return result, nil
}

// IniDecoder 每个 section 解码为一个子 map，默认 section 的键放在顶层
type IniDecoder struct{}

func (IniDecoder) Decode(data []byte) (any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SpaceBeforeInlineComment:   true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "ini.LoadSources failed")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if section.Name() != ini.DefaultSection {
			target = map[string]any{}
			result[section.Name()] = target
		}
		for _, key := range section.Keys() {
			target[key.Name()] = parseIniValue(key.String())
		}
	}
	return result, nil
}

func parseIniValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		values := make([]any, len(parts))
		for i, part := range parts {
			values[i] = parseIniValue(strings.TrimSpace(part))
		}
		return values
	}
	return value
}

// DecoderFor 根据文件扩展名选择解码器
func DecoderFor(filename string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return YamlDecoder{}, nil
	case ".json":
		return JsonDecoder{}, nil
	case ".toml":
		return TomlDecoder{}, nil
	case ".ini":
		return IniDecoder{}, nil
	}
	return nil, errors.Errorf("unsupported config format: %s", filename)
}
