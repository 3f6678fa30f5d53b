package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debugger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nstopAtEntry: true\nlog:\n  domains: x\n"), 0644))
	configFile = path
	defer func() { configFile = "" }()

	require.NoError(t, rootCmd.ParseFlags([]string{"--protocol", "dap", "-L", "bn", "--welcome=false"}))
	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.StopAtEntry)
	assert.Equal(t, constants.ProtocolDAP, cfg.Protocol)
	assert.Equal(t, "bn", cfg.Log.Domains)
	assert.False(t, cfg.Welcome)
	assert.Equal(t, config.DefaultAddress, cfg.Address)
}

func TestSetupLogger_DomainsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debugger.log")
	require.NoError(t, SetupLogger(&config.LogConfig{Level: "warn", Domains: "b", File: path, JSON: true}))
	defer func() {
		CloseLogger()
		logFile = nil
		utils.ConfigureLoggers(os.Stderr, &logrus.TextFormatter{FullTimestamp: true}, logrus.InfoLevel, nil)
	}()

	utils.Logger(constants.DomainBreakpoint).Debugf("[Registry] Create")
	utils.Logger(constants.DomainEval).Infof("[Evaluate] hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"domain":"breakpoint"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestSetupLogger_BadLevel(t *testing.T) {
	assert.Error(t, SetupLogger(&config.LogConfig{Level: "loud"}))
}
