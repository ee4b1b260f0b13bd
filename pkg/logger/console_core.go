package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap/zapcore"
)

// customLevelKey carries the kubeboot Level through zap so the console core
// can distinguish SUCCESS from plain INFO and FAIL from FATAL.
const customLevelKey = "kubeboot_level"

// Context keys the console core promotes into bracketed prefixes, in the
// order they are printed: [run:..][phase:..][host:..][task:..].
var contextPrefixKeys = []string{"run", "phase", "host", "task"}

// consoleCore is a zapcore.Core that renders human-oriented lines like
//
//	2026-01-02T15:04:05Z [SUCCESS] [phase:init][host:master-1] control plane initialized
//
// instead of zap's structured console encoding.
type consoleCore struct {
	opts    Options
	context []zapcore.Field
	mu      *sync.Mutex
}

func newConsoleCore(opts Options) zapcore.Core {
	return &consoleCore{opts: opts, mu: &sync.Mutex{}}
}

func (c *consoleCore) Enabled(lvl zapcore.Level) bool {
	// SUCCESS records arrive as InfoLevel and FAIL as FatalLevel; enabling by
	// the mapped zap level keeps them visible at their natural thresholds.
	return lvl >= c.opts.ConsoleLevel.ToZapLevel()
}

func (c *consoleCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &consoleCore{opts: c.opts, mu: c.mu}
	clone.context = append(clone.context, c.context...)
	clone.context = append(clone.context, fields...)
	return clone
}

func (c *consoleCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *consoleCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.context)+len(fields))
	all = append(all, c.context...)
	all = append(all, fields...)

	level := levelFromFields(ent.Level, all)

	var line strings.Builder
	if c.opts.TimestampFormat != "" {
		line.WriteString(ent.Time.Format(c.opts.TimestampFormat))
		line.WriteByte(' ')
	}
	line.WriteString(c.levelTag(level))
	line.WriteByte(' ')

	prefixed := map[string]string{}
	var rest []zapcore.Field
	for _, f := range all {
		if f.Key == customLevelKey {
			continue
		}
		isPrefix := false
		for _, k := range contextPrefixKeys {
			if f.Key == k && f.Type == zapcore.StringType {
				prefixed[k] = f.String
				isPrefix = true
				break
			}
		}
		if !isPrefix {
			rest = append(rest, f)
		}
	}
	var prefix strings.Builder
	for _, k := range contextPrefixKeys {
		if v, ok := prefixed[k]; ok && v != "" {
			fmt.Fprintf(&prefix, "[%s:%s]", k, v)
		}
	}
	if prefix.Len() > 0 {
		line.WriteString(prefix.String())
		line.WriteByte(' ')
	}

	line.WriteString(ent.Message)
	appendFields(&line, rest)
	line.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := os.Stdout.WriteString(line.String())
	return err
}

func (c *consoleCore) Sync() error { return nil }

func (c *consoleCore) levelTag(l Level) string {
	tag := "[" + l.CapitalString() + "]"
	if !c.opts.ColorConsole {
		return tag
	}
	switch l {
	case DebugLevel:
		return color.MagentaString(tag)
	case SuccessLevel:
		return color.GreenString(tag)
	case WarnLevel:
		return color.YellowString(tag)
	case ErrorLevel, FailLevel:
		return color.RedString(tag)
	default:
		return tag
	}
}

// levelFromFields recovers the kubeboot Level from the customLevelKey field,
// falling back to the zap entry level.
func levelFromFields(zl zapcore.Level, fields []zapcore.Field) Level {
	for _, f := range fields {
		if f.Key == customLevelKey && f.Type == zapcore.StringType {
			switch f.String {
			case "DEBUG":
				return DebugLevel
			case "SUCCESS":
				return SuccessLevel
			case "WARN":
				return WarnLevel
			case "ERROR":
				return ErrorLevel
			case "FAIL":
				return FailLevel
			case "INFO":
				return InfoLevel
			}
		}
	}
	switch {
	case zl <= zapcore.DebugLevel:
		return DebugLevel
	case zl == zapcore.WarnLevel:
		return WarnLevel
	case zl >= zapcore.FatalLevel:
		return FailLevel
	case zl >= zapcore.ErrorLevel:
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func appendFields(line *strings.Builder, fields []zapcore.Field) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	for _, f := range fields {
		line.WriteByte(' ')
		line.WriteString(f.Key)
		line.WriteByte('=')
		switch f.Type {
		case zapcore.StringType:
			if f.String == "" || strings.ContainsAny(f.String, " \t") {
				fmt.Fprintf(line, "%q", f.String)
			} else {
				line.WriteString(f.String)
			}
		case zapcore.BoolType:
			fmt.Fprintf(line, "%t", f.Integer == 1)
		case zapcore.Int8Type, zapcore.Int16Type, zapcore.Int32Type, zapcore.Int64Type:
			fmt.Fprintf(line, "%d", f.Integer)
		case zapcore.Uint8Type, zapcore.Uint16Type, zapcore.Uint32Type, zapcore.Uint64Type:
			fmt.Fprintf(line, "%d", uint64(f.Integer))
		case zapcore.DurationType:
			fmt.Fprintf(line, "%v", time.Duration(f.Integer))
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				fmt.Fprintf(line, "%q", err.Error())
			}
		default:
			fmt.Fprintf(line, "%v", f.Interface)
		}
	}
}
