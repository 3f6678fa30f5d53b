package utils

import (
	"bytes"
	"testing"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestStatusManager(t *testing.T) {
	s := NewStatusManager()
	assert.True(t, s.Is(Init))
	assert.False(t, s.CompareAndSet(Stopped, Running))
	assert.True(t, s.CompareAndSet(Running, Init))
	assert.True(t, s.Is(Running, Stopped))
	s.Set(Finish)
	assert.Equal(t, Finish, s.Get())
}

func TestParseDomains(t *testing.T) {
	assert.Equal(t, []constants.LogDomain{constants.DomainNetwork, constants.DomainEval},
		ParseDomains("nze"))
	assert.Empty(t, ParseDomains(""))
}

func TestLoggerDomainLevel(t *testing.T) {
	var buf bytes.Buffer
	ConfigureLoggers(&buf, &logrus.JSONFormatter{}, logrus.InfoLevel,
		[]constants.LogDomain{constants.DomainBreakpoint})
	defer ConfigureLoggers(&bytes.Buffer{}, &logrus.TextFormatter{}, logrus.InfoLevel, nil)

	Logger(constants.DomainBreakpoint).Debug("visible")
	Logger(constants.DomainNetwork).Debug("hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), `"domain":"breakpoint"`)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestList2set(t *testing.T) {
	set := List2set([]int{1, 2, 2, 3})
	assert.Equal(t, 3, set.Size())
	assert.True(t, set.Contains(2))
}
