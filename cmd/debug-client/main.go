package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fansqz/trace-debugger/client"
	"github.com/fansqz/trace-debugger/config"
	"github.com/spf13/cobra"
)

var (
	address   string
	websocket string
)

var rootCmd = &cobra.Command{
	Use:   "debug-client",
	Short: "Interactive client for trace-debugger",
	Long: `debug-client connects to a running trace-debugger and reads commands from the terminal.

Examples:
  debug-client --address 127.0.0.1:15470
  debug-client --ws ws://127.0.0.1:15470/debug`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&address, "address", "a", fmt.Sprintf("%s:%d", config.DefaultAddress, config.DefaultPort),
		"debugger address")
	rootCmd.Flags().StringVar(&websocket, "ws", "", "websocket url, overrides --address")
}

func dial(ctx context.Context) (*client.Client, error) {
	if websocket != "" {
		return client.DialWebsocket(ctx, websocket)
	}
	return client.Dial(ctx, address)
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	rl, err := readline.New("(tdb) ")
	if err != nil {
		return err
	}
	defer rl.Close()

	r := newRepl(c, rl.Stdout())
	go func() {
		for msg := range c.Notifications() {
			r.printNotification(msg)
		}
		fmt.Fprintln(rl.Stdout(), "connection closed")
		_ = rl.Close()
	}()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		// 空行重复上一条命令
		if line == "" {
			line = lastLine
		}
		lastLine = line
		if line == "" {
			continue
		}

		quit, err := r.execute(ctx, line)
		if err != nil {
			fmt.Fprintln(rl.Stdout(), "error:", err)
		}
		if quit {
			return nil
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
