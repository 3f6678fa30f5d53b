package main

import (
	"io"
	"os"

	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
)

var logFile *os.File

// SetupLogger 根据配置设置所有日志域的输出、格式和级别
func SetupLogger(cfg *config.LogConfig) error {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		// 文件不存在时创建，日志追加到文件末尾
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		logFile = f
		out = f
	}

	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if cfg.JSON {
		formatter = &logrus.JSONFormatter{}
	}
	logrus.SetOutput(out)
	logrus.SetFormatter(formatter)
	logrus.SetLevel(level)
	utils.ConfigureLoggers(out, formatter, level, utils.ParseDomains(cfg.Domains))
	return nil
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
	}
}
