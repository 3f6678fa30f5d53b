package client

import (
	"context"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/protocol"
)

// GetBreakpoints 获取所有断点
func (c *Client) GetBreakpoints(ctx context.Context) ([]*protocol.BreakpointDescriptor, error) {
	reply, err := c.Call(ctx, constants.GetBreakpoints, nil)
	if err != nil {
		return nil, err
	}
	var answer []*protocol.BreakpointDescriptor
	if err = decodeResult(reply, &answer); err != nil {
		return nil, err
	}
	return answer, nil
}

// SetBreakpoint 设置断点，返回断点编号
func (c *Client) SetBreakpoint(ctx context.Context, file string, line int, condition string, enabled bool) (int, error) {
	reply, err := c.Call(ctx, constants.SetBreakpoint, map[string]interface{}{
		"file_name":   file,
		"line_number": line,
		"condition":   condition,
		"enabled":     enabled,
	})
	if err != nil {
		return 0, err
	}
	result := &protocol.BreakpointResult{}
	if err = decodeResult(reply, result); err != nil {
		return 0, err
	}
	return result.BreakpointNumber, nil
}

func (c *Client) ChangeBreakpointState(ctx context.Context, number int, enabled bool, condition string) error {
	_, err := c.Call(ctx, constants.ChangeBreakpointState, map[string]interface{}{
		"breakpoint_number": number,
		"enabled":           enabled,
		"condition":         condition,
	})
	return err
}

func (c *Client) ClearBreakpoint(ctx context.Context, number int) error {
	_, err := c.Call(ctx, constants.ClearBreakpoint, map[string]interface{}{
		"breakpoint_number": number,
	})
	return err
}

// GetProperties 展开引用，id为0返回空列表
func (c *Client) GetProperties(ctx context.Context, id int) ([]*protocol.VariableDescriptor, error) {
	var args map[string]interface{}
	if id != 0 {
		args = map[string]interface{}{"id": id}
	}
	reply, err := c.Call(ctx, constants.GetProperties, args)
	if err != nil {
		return nil, err
	}
	result := &protocol.PropertiesResult{}
	if err = decodeResult(reply, result); err != nil {
		return nil, err
	}
	return result.Properties, nil
}

func (c *Client) SetVariable(ctx context.Context, frameID int, name string, value string) error {
	_, err := c.Call(ctx, constants.SetVariable, map[string]interface{}{
		"frame": frameID,
		"name":  name,
		"value": value,
	})
	return err
}

// Evaluate 计算表达式，返回值和类型
func (c *Client) Evaluate(ctx context.Context, frameID int, expression string, global bool, disableBreak bool) (string, string, error) {
	reply, err := c.Call(ctx, constants.Evaluate, map[string]interface{}{
		"frame":        frameID,
		"expression":   expression,
		"global":       global,
		"disableBreak": disableBreak,
	})
	if err != nil {
		return "", "", err
	}
	result := &protocol.EvaluateResult{}
	if err = decodeResult(reply, result); err != nil {
		return "", "", err
	}
	return result.Value, result.Type, nil
}

func (c *Client) RunScript(ctx context.Context) error {
	return c.execute(ctx, constants.RunScript)
}

func (c *Client) Suspend(ctx context.Context) error {
	return c.execute(ctx, constants.Suspend)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.execute(ctx, constants.Resume)
}

func (c *Client) StepOver(ctx context.Context) error {
	return c.execute(ctx, constants.StepOver)
}

func (c *Client) StepInto(ctx context.Context) error {
	return c.execute(ctx, constants.StepInto)
}

func (c *Client) StepOut(ctx context.Context) error {
	return c.execute(ctx, constants.StepOut)
}

func (c *Client) execute(ctx context.Context, command constants.CommandType) error {
	_, err := c.Call(ctx, command, nil)
	return err
}
