package log

import (
	"github.com/hatlonely/ormx/log/logger"
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

var defaultLogger logger.Logger

func init() {
	// 默认向终端输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = slog
}

func Default() logger.Logger {
	return defaultLogger
}

// NewLoggerWithOptions 通过 ref 创建日志器，options 为 nil 时返回默认日志器
// Namespace 为空时默认为 logger 包
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return defaultLogger, nil
	}
	namespace, _ := ref.TypeName[*logger.SLog]()
	l, err := ref.NewAs[logger.Logger](options, namespace)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	return l, nil
}
