package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	e "github.com/fansqz/trace-debugger/error"
)

const (
	// MagicCode 分隔长度和消息体的标记
	MagicCode = "LLADpcdtbdpac"
	// lengthPrefix 每条消息的开头
	lengthPrefix = "length="
	// maxLengthDigits 长度字段允许的最大位数
	maxLengthDigits = 12
)

// Encode 编码一条消息：length=<N><MagicCode><json>
func Encode(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(lengthPrefix) + maxLengthDigits + len(MagicCode) + len(payload))
	fmt.Fprintf(&buf, "%s%d%s", lengthPrefix, len(payload), MagicCode)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode 解码一条完整的消息
func Decode(frame []byte, v interface{}) error {
	start, n, ok, err := parseHeader(frame)
	if err != nil {
		return err
	}
	if !ok || len(frame)-start != n {
		return fmt.Errorf("%w: truncated message", e.ErrFrameCorrupted)
	}
	return decodePayload(frame[start:], v)
}

func decodePayload(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", e.ErrFrameCorrupted, err)
	}
	return nil
}

// parseHeader 解析消息头
// ok为false表示数据还不够，start为消息体开始的位置，n为消息体长度
func parseHeader(buf []byte) (start int, n int, ok bool, err error) {
	prefixLen := len(lengthPrefix)
	if len(buf) < prefixLen {
		if !bytes.HasPrefix([]byte(lengthPrefix), buf) {
			return 0, 0, false, fmt.Errorf("%w: bad prefix %q", e.ErrFrameCorrupted, buf)
		}
		return 0, 0, false, nil
	}
	if !bytes.HasPrefix(buf, []byte(lengthPrefix)) {
		return 0, 0, false, fmt.Errorf("%w: bad prefix %q", e.ErrFrameCorrupted, buf[:prefixLen])
	}
	idx := bytes.Index(buf[prefixLen:], []byte(MagicCode))
	if idx < 0 {
		// 还没有收到完整的标记
		if len(buf) > prefixLen+maxLengthDigits+len(MagicCode) {
			return 0, 0, false, fmt.Errorf("%w: magic code not found", e.ErrFrameCorrupted)
		}
		return 0, 0, false, nil
	}
	digits := string(buf[prefixLen : prefixLen+idx])
	if digits == "" || len(digits) > maxLengthDigits {
		return 0, 0, false, fmt.Errorf("%w: bad length %q", e.ErrFrameCorrupted, digits)
	}
	n, convErr := strconv.Atoi(digits)
	if convErr != nil || n < 0 {
		return 0, 0, false, fmt.Errorf("%w: bad length %q", e.ErrFrameCorrupted, digits)
	}
	return prefixLen + idx + len(MagicCode), n, true, nil
}
