package utils

import (
	"io"
	"os"
	"sync"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/sirupsen/logrus"
)

var (
	loggerLock    sync.Mutex
	domainLoggers                  = map[constants.LogDomain]*logrus.Logger{}
	logOutput     io.Writer        = os.Stderr
	logFormatter  logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	logLevel                       = logrus.InfoLevel
	debugDomains                   = map[constants.LogDomain]bool{}
)

// ConfigureLoggers 设置所有日志域的输出，debug中的日志域使用Debug级别
func ConfigureLoggers(out io.Writer, formatter logrus.Formatter, level logrus.Level, debug []constants.LogDomain) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logOutput = out
	logFormatter = formatter
	logLevel = level
	debugDomains = map[constants.LogDomain]bool{}
	for _, d := range debug {
		debugDomains[d] = true
	}
	for d, l := range domainLoggers {
		apply(d, l)
	}
}

func apply(d constants.LogDomain, l *logrus.Logger) {
	l.SetOutput(logOutput)
	l.SetFormatter(logFormatter)
	if debugDomains[d] {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logLevel)
	}
}

// Logger 获取某个日志域的logger
func Logger(d constants.LogDomain) *logrus.Entry {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	l, ok := domainLoggers[d]
	if !ok {
		l = logrus.New()
		apply(d, l)
		domainLoggers[d] = l
	}
	return l.WithField("domain", string(d))
}

// ParseDomains 解析日志域字母，例如"nbe"，无法识别的字母被忽略
func ParseDomains(letters string) []constants.LogDomain {
	var answer []constants.LogDomain
	for _, r := range letters {
		if d, ok := constants.DomainLetters[r]; ok {
			answer = append(answer, d)
		}
	}
	return answer
}
