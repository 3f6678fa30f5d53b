package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fansqz/trace-debugger/config"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/programs"
	"github.com/fansqz/trace-debugger/server"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	programName string
)

var rootCmd = &cobra.Command{
	Use:   "trace-debugger",
	Short: "Remote debugger for programs running on the instrumented vm",
	Long: `trace-debugger serves a debug session per connection. Each session runs the
selected program in a fresh vm and lets the client set breakpoints, step, inspect
frames and evaluate expressions.

Examples:
  trace-debugger --program fib --port 15470
  trace-debugger --program workers --protocol dap
  trace-debugger --config debugger.yaml --log-domains bx`,
	Version:      server.Version,
	SilenceUsage: true,
	RunE:         run,
}

// stringFlag 字符串参数，非空时覆盖配置文件
type stringFlag struct {
	name, shorthand, description string
	apply                        func(c *config.Config, v string)
}

// boolFlag 布尔参数
type boolFlag struct {
	name, description string
	apply             func(c *config.Config, v bool)
}

var stringFlags = []stringFlag{
	{"address", "a", "address to listen on", func(c *config.Config, v string) { c.Address = v }},
	{"protocol", "", "protocol spoken on the connection: native or dap", func(c *config.Config, v string) { c.Protocol = constants.ProtocolType(v) }},
	{"working-dir", "", "directory used to resolve relative breakpoint files", func(c *config.Config, v string) { c.WorkingDirectory = v }},
	{"log-level", "", "default log level", func(c *config.Config, v string) { c.Log.Level = v }},
	{"log-domains", "L", "log domains at debug level: n(etwork) b(reakpoint) e(val) (e)x(ecution) f(rame) p(ath) g(lobal)", func(c *config.Config, v string) { c.Log.Domains = v }},
	{"log-file", "", "append logs to this file instead of stderr", func(c *config.Config, v string) { c.Log.File = v }},
}

var boolFlags = []boolFlag{
	{"websocket", "serve the native protocol over websocket", func(c *config.Config, v bool) { c.Websocket = v }},
	{"stop-at-entry", "break on the first statement of the program", func(c *config.Config, v bool) { c.StopAtEntry = v }},
	{"welcome", "send the start message when a client connects", func(c *config.Config, v bool) { c.Welcome = v }},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "yaml config file")
	rootCmd.Flags().StringVarP(&programName, "program", "P", "fib",
		"program to debug: "+strings.Join(programs.Names(), ", "))
	rootCmd.Flags().IntP("port", "p", config.DefaultPort, "TCP port to listen on")
	for _, f := range stringFlags {
		rootCmd.Flags().StringP(f.name, f.shorthand, "", f.description)
	}
	for _, f := range boolFlags {
		rootCmd.Flags().Bool(f.name, false, f.description)
	}
}

// loadConfig 读取配置文件，命令行中出现的参数覆盖配置文件
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	for _, f := range stringFlags {
		if flags.Changed(f.name) {
			v, _ := flags.GetString(f.name)
			f.apply(cfg, v)
		}
	}
	for _, f := range boolFlags {
		if flags.Changed(f.name) {
			v, _ := flags.GetBool(f.name)
			f.apply(cfg, v)
		}
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	program, ok := programs.Lookup(programName)
	if !ok {
		return fmt.Errorf("unknown program %q, available: %s", programName, strings.Join(programs.Names(), ", "))
	}
	//启动日志
	if err = SetupLogger(&cfg.Log); err != nil {
		return err
	}
	defer CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Printf("debugging %s on %s (%s)\n", programName, cfg.Listen(), cfg.Protocol)
	return server.NewServer(cfg, program).ListenAndServe(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
