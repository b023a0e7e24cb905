package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ParseLevel 解析日志级别
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return 0, fmt.Errorf("invalid log level: %s", level)
}

// SetupLogger 安装全局日志处理器，format 为 terminal 或 json
func SetupLogger(w io.Writer, level, format string, color bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	var h slog.Handler
	if format == "json" {
		h = log.JSONHandlerWithLevel(w, lvl)
	} else {
		h = log.NewTerminalHandlerWithLevel(w, lvl, color)
	}
	log.SetDefault(log.NewLogger(h))
	return nil
}
