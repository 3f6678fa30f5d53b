package debugger

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fansqz/trace-debugger/constants"
	"github.com/fansqz/trace-debugger/utils"
	"github.com/sirupsen/logrus"
)

// SourceCache 规范化文件路径，查找源文件的行
// 不在磁盘上的源文件可以通过sources注册
type SourceCache struct {
	mu      sync.RWMutex
	canonic map[string]string
	lines   map[string][]string
	mainDir string
	workDir string
	log     *logrus.Entry
}

func NewSourceCache(mainFile string, workDir string, sources map[string]string) *SourceCache {
	c := &SourceCache{
		canonic: map[string]string{},
		lines:   map[string][]string{},
		workDir: workDir,
		log:     utils.Logger(constants.DomainPath),
	}
	if mainFile != "" {
		c.mainDir = filepath.Dir(c.Canonic(mainFile))
	}
	for file, code := range sources {
		c.lines[c.Canonic(file)] = splitLines(code)
	}
	return c
}

// Canonic 返回规范化的绝对路径，<string>这类名称保持不变
func (c *SourceCache) Canonic(name string) string {
	if strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">") {
		return name
	}
	c.mu.RLock()
	canonic, ok := c.canonic[name]
	c.mu.RUnlock()
	if ok {
		return canonic
	}
	canonic = name
	if abs, err := filepath.Abs(name); err == nil {
		canonic = abs
	}
	canonic = filepath.Clean(canonic)
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		canonic = strings.ToLower(canonic)
	}
	c.mu.Lock()
	c.canonic[name] = canonic
	c.mu.Unlock()
	return canonic
}

// LookupModule 把可能不完整的文件名转换为绝对路径，找不到返回空字符串
func (c *SourceCache) LookupModule(name string) string {
	c.log.Debugf("[SourceCache] LookupModule %s", name)
	if filepath.IsAbs(name) && c.exists(name) {
		return name
	}
	if c.mainDir != "" {
		if f := filepath.Join(c.mainDir, name); c.exists(f) {
			return f
		}
	}
	if c.workDir != "" {
		if f := filepath.Join(c.workDir, name); c.exists(f) {
			return f
		}
	}
	// 注册的源文件按后缀匹配
	suffix := string(filepath.Separator) + filepath.Clean(name)
	c.mu.RLock()
	for file := range c.lines {
		if strings.HasSuffix(file, suffix) {
			c.mu.RUnlock()
			return file
		}
	}
	c.mu.RUnlock()
	if filepath.Ext(name) == "" {
		return c.LookupModule(name + ".go")
	}
	return ""
}

func (c *SourceCache) exists(file string) bool {
	canonic := c.Canonic(file)
	c.mu.RLock()
	_, ok := c.lines[canonic]
	c.mu.RUnlock()
	if ok {
		return true
	}
	info, err := os.Stat(file)
	return err == nil && !info.IsDir()
}

// HasLine 文件中是否存在某一行
func (c *SourceCache) HasLine(file string, line int) bool {
	if line < 1 {
		return false
	}
	lines, err := c.load(file)
	if err != nil {
		c.log.Debugf("[SourceCache] load %s fail, err = %v", file, err)
		return false
	}
	return line <= len(lines)
}

// Line 返回某一行的内容
func (c *SourceCache) Line(file string, line int) string {
	lines, err := c.load(file)
	if err != nil || line < 1 || line > len(lines) {
		return ""
	}
	return lines[line-1]
}

func (c *SourceCache) load(file string) ([]string, error) {
	canonic := c.Canonic(file)
	c.mu.RLock()
	lines, ok := c.lines[canonic]
	c.mu.RUnlock()
	if ok {
		return lines, nil
	}
	f, err := os.Open(canonic)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.lines[canonic] = lines
	c.mu.Unlock()
	return lines, nil
}

func splitLines(code string) []string {
	code = strings.TrimSuffix(code, "\n")
	if code == "" {
		return []string{}
	}
	return strings.Split(code, "\n")
}
