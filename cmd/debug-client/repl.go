package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fansqz/trace-debugger/client"
	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/protocol"
)

var errUsage = errors.New("bad arguments")

type command struct {
	name    string
	aliases []string
	usage   string
	run     func(ctx context.Context, r *repl, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "continue", aliases: []string{"c"}, usage: "continue", run: execution((*client.Client).Resume)},
		{name: "next", aliases: []string{"n"}, usage: "next", run: execution((*client.Client).StepOver)},
		{name: "step", aliases: []string{"s"}, usage: "step", run: execution((*client.Client).StepInto)},
		{name: "out", usage: "out", run: execution((*client.Client).StepOut)},
		{name: "pause", usage: "pause", run: execution((*client.Client).Suspend)},
		{name: "run", aliases: []string{"r"}, usage: "run", run: execution((*client.Client).RunScript)},
		{name: "break", aliases: []string{"b"}, usage: "break <file>:<line> [if <condition>]", run: setBreakpoint},
		{name: "clear", usage: "clear <number>", run: clearBreakpoint},
		{name: "enable", usage: "enable <number>", run: toggleBreakpoint(true)},
		{name: "disable", usage: "disable <number>", run: toggleBreakpoint(false)},
		{name: "breakpoints", aliases: []string{"bps"}, usage: "breakpoints", run: listBreakpoints},
		{name: "print", aliases: []string{"p"}, usage: "print <expression>", run: evaluate},
		{name: "set", usage: "set <name>=<value>", run: setVariable},
		{name: "props", usage: "props <id>", run: properties},
		{name: "backtrace", aliases: []string{"bt"}, usage: "backtrace", run: backtrace},
		{name: "frame", aliases: []string{"f"}, usage: "frame <index>", run: selectFrame},
		{name: "help", aliases: []string{"h"}, usage: "help", run: help},
	}
}

// lookup 先按别名精确匹配，再按名字前缀匹配
func lookup(name string) (*command, bool) {
	for i := range commands {
		for _, alias := range commands[i].aliases {
			if alias == name {
				return &commands[i], true
			}
		}
	}
	for i := range commands {
		if strings.HasPrefix(commands[i].name, name) {
			return &commands[i], true
		}
	}
	return nil, false
}

// repl 交互式调试客户端，保存最近一次断点的栈帧
type repl struct {
	client *client.Client
	out    io.Writer

	mu     sync.Mutex
	frames []*protocol.FrameDescriptor
	frame  int
}

func newRepl(c *client.Client, out io.Writer) *repl {
	return &repl{client: c, out: out}
}

// execute 执行一行命令，返回是否退出
func (r *repl) execute(ctx context.Context, line string) (bool, error) {
	args := strings.Fields(line)
	if args[0] == "quit" || args[0] == "q" {
		return true, nil
	}
	cmd, ok := lookup(args[0])
	if !ok {
		return false, fmt.Errorf("invalid command: %s", args[0])
	}
	err := cmd.run(ctx, r, args[1:])
	if errors.Is(err, errUsage) {
		return false, fmt.Errorf("usage: %s", cmd.usage)
	}
	return false, err
}

func (r *repl) printf(format string, a ...interface{}) {
	fmt.Fprintf(r.out, format, a...)
}

// printNotification 打印调试器主动发送的消息
func (r *repl) printNotification(msg *protocol.Message) {
	switch constants.NotificationType(msg.Command) {
	case constants.StartNotification:
		r.printf("%s\n", strings.Join(msg.InfoMessages, " "))
	case constants.ProgramBreakNotification:
		r.mu.Lock()
		r.frames = msg.Frames
		r.frame = 0
		r.mu.Unlock()
		for _, warning := range msg.WarningMessages {
			r.printf("warning: %s\n", warning)
		}
		if msg.Exception != nil {
			r.printf("panic: %s (%s)\n", msg.Exception.Info, msg.Exception.Type)
		}
		if len(msg.Frames) > 0 {
			top := msg.Frames[0]
			r.printf("stopped in %s at %s:%d\n", top.Name, top.FilePath, top.LineNumber)
		}
	case constants.ProgramEndNotification:
		r.mu.Lock()
		r.frames = nil
		r.mu.Unlock()
		code := 0
		if result, ok := msg.Result.(map[string]interface{}); ok {
			if n, ok := result["exit_code"].(float64); ok {
				code = int(n)
			}
		}
		r.printf("program exited with code %d\n", code)
	}
}

// currentFrame 当前选中的栈帧id，没有断点时为0
func (r *repl) currentFrame() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frame < len(r.frames) {
		return r.frames[r.frame].ID
	}
	return 0
}

func execution(fn func(*client.Client, context.Context) error) func(context.Context, *repl, []string) error {
	return func(ctx context.Context, r *repl, _ []string) error {
		return fn(r.client, ctx)
	}
}

// parseLocation 解析file:line
func parseLocation(location string) (string, int, error) {
	idx := strings.LastIndex(location, ":")
	if idx <= 0 {
		return "", 0, errUsage
	}
	line, err := strconv.Atoi(location[idx+1:])
	if err != nil {
		return "", 0, errUsage
	}
	return location[:idx], line, nil
}

func setBreakpoint(ctx context.Context, r *repl, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	file, line, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	condition := ""
	if len(args) > 1 {
		if args[1] != "if" || len(args) < 3 {
			return errUsage
		}
		condition = strings.Join(args[2:], " ")
	}
	number, err := r.client.SetBreakpoint(ctx, file, line, condition, true)
	if err != nil {
		return err
	}
	r.printf("breakpoint %d at %s:%d\n", number, file, line)
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errUsage
	}
	return number, nil
}

func clearBreakpoint(ctx context.Context, r *repl, args []string) error {
	number, err := intArg(args)
	if err != nil {
		return err
	}
	return r.client.ClearBreakpoint(ctx, number)
}

// toggleBreakpoint 修改启用状态，保留原来的条件
func toggleBreakpoint(enabled bool) func(context.Context, *repl, []string) error {
	return func(ctx context.Context, r *repl, args []string) error {
		number, err := intArg(args)
		if err != nil {
			return err
		}
		breakpoints, err := r.client.GetBreakpoints(ctx)
		if err != nil {
			return err
		}
		for _, bp := range breakpoints {
			if bp.BreakpointNumber == number {
				return r.client.ChangeBreakpointState(ctx, number, enabled, bp.Condition)
			}
		}
		return r.client.ChangeBreakpointState(ctx, number, enabled, "")
	}
}

func listBreakpoints(ctx context.Context, r *repl, _ []string) error {
	breakpoints, err := r.client.GetBreakpoints(ctx)
	if err != nil {
		return err
	}
	if len(breakpoints) == 0 {
		r.printf("no breakpoints\n")
	}
	for _, bp := range breakpoints {
		state := "enabled"
		if !bp.Enabled {
			state = "disabled"
		}
		r.printf("%d\t%s:%d\t%s", bp.BreakpointNumber, bp.FileName, bp.LineNumber, state)
		if bp.Condition != "" {
			r.printf("\tif %s", bp.Condition)
		}
		r.printf("\n")
	}
	return nil
}

func evaluate(ctx context.Context, r *repl, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	frame := r.currentFrame()
	value, typ, err := r.client.Evaluate(ctx, frame, strings.Join(args, " "), frame == 0, false)
	if err != nil {
		return err
	}
	r.printf("%s (%s)\n", value, typ)
	return nil
}

func setVariable(ctx context.Context, r *repl, args []string) error {
	assignment := strings.Join(args, " ")
	idx := strings.Index(assignment, "=")
	if idx <= 0 {
		return errUsage
	}
	name := strings.TrimSpace(assignment[:idx])
	value := strings.TrimSpace(assignment[idx+1:])
	return r.client.SetVariable(ctx, r.currentFrame(), name, value)
}

func properties(ctx context.Context, r *repl, args []string) error {
	id, err := intArg(args)
	if err != nil {
		return err
	}
	variables, err := r.client.GetProperties(ctx, id)
	if err != nil {
		return err
	}
	for _, v := range variables {
		r.printVariable(v)
	}
	return nil
}

func (r *repl) printVariable(v *protocol.VariableDescriptor) {
	r.printf("  %s %s = %s", v.Name, v.Type, v.Value)
	if v.ChildrenCount > 0 {
		r.printf("  [props %d]", v.ID)
	}
	r.printf("\n")
}

func backtrace(_ context.Context, r *repl, _ []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		r.printf("not stopped\n")
		return nil
	}
	for i, f := range r.frames {
		marker := " "
		if i == r.frame {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s#%d %s at %s:%d\n", marker, i, f.Name, f.FilePath, f.LineNumber)
	}
	return nil
}

func selectFrame(_ context.Context, r *repl, args []string) error {
	index, err := intArg(args)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if index < 0 || index >= len(r.frames) {
		r.mu.Unlock()
		return fmt.Errorf("no frame #%d", index)
	}
	r.frame = index
	f := r.frames[index]
	r.mu.Unlock()
	r.printf("#%d %s at %s:%d\n", index, f.Name, f.FilePath, f.LineNumber)
	for _, v := range f.Locals {
		r.printVariable(v)
	}
	return nil
}

func help(_ context.Context, r *repl, _ []string) error {
	for _, cmd := range commands {
		r.printf("  %s\n", cmd.usage)
	}
	r.printf("  quit\n")
	return nil
}
