package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"radiolog/config"
)

// Log entries go to the console (stdout, or the dashboard's system pane while
// it is up) and, when logging.dir is set, to one file per UTC day. The file
// side is a logrus hook, so swapping the console never loses file output.

const (
	logTimestampLayout   = "2006/01/02 15:04:05"
	logFileDateLayout    = "2006-01-02"
	logFilePrefix        = "radiolog-"
	logFileSuffix        = ".log"
	defaultRetentionDays = 7
)

// lineFormatter renders an entry as one line:
// "<utc timestamp> [LEVEL ]message key=value ...". Info carries no level tag.
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(e.Time.UTC().Format(logTimestampLayout))
	b.WriteByte(' ')
	if e.Level != logrus.InfoLevel {
		b.WriteString(strings.ToUpper(e.Level.String()))
		b.WriteByte(' ')
	}
	b.WriteString(strings.TrimRight(e.Message, "\r\n"))

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// consoleOutput is the logrus output; the target can be swapped at runtime.
type consoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleOutput) Write(p []byte) (int, error) {
	c.mu.Lock()
	w := c.w
	c.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}

func (c *consoleOutput) set(w io.Writer) {
	c.mu.Lock()
	c.w = w
	c.mu.Unlock()
}

// dayFileHook appends every entry to radiolog-YYYY-MM-DD.log under dir and
// prunes files older than the retention window whenever the day changes.
type dayFileHook struct {
	dir       string
	retention int

	mu      sync.Mutex
	day     string
	file    *os.File
	lastErr time.Time
}

func newDayFileHook(dir string, retentionDays int) (*dayFileHook, error) {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	return &dayFileHook{dir: dir, retention: retentionDays}, nil
}

func (h *dayFileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *dayFileHook) Fire(e *logrus.Entry) error {
	line, err := lineFormatter{}.Format(e)
	if err != nil {
		return err
	}
	h.write(e.Time, line)
	return nil
}

// write never logs through logrus; failures go to stderr at most once a
// minute so a full disk cannot recurse into the hook.
func (h *dayFileHook) write(now time.Time, line []byte) {
	now = now.UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	if day := now.Format(logFileDateLayout); h.file == nil || day != h.day {
		if err := h.openLocked(day, now); err != nil {
			h.reportLocked(now, err)
			return
		}
	}
	if _, err := h.file.Write(line); err != nil {
		h.reportLocked(now, err)
	}
}

func (h *dayFileHook) openLocked(day string, now time.Time) error {
	if h.file != nil {
		_ = h.file.Close()
		h.file = nil
	}
	f, err := os.OpenFile(filepath.Join(h.dir, logFilePrefix+day+logFileSuffix), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	h.file, h.day = f, day
	return pruneLogs(h.dir, now, h.retention)
}

func (h *dayFileHook) reportLocked(now time.Time, err error) {
	if now.Sub(h.lastErr) < time.Minute {
		return
	}
	h.lastErr = now
	fmt.Fprintf(os.Stderr, "Logging: %s: %v\n", h.dir, err)
}

func (h *dayFileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file, h.day = nil, ""
	return err
}

// pruneLogs removes day files whose date falls before the retention window.
// Names that do not parse as day files are left alone.
func pruneLogs(dir string, now time.Time, retentionDays int) error {
	matches, err := filepath.Glob(filepath.Join(dir, logFilePrefix+"*"+logFileSuffix))
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1-retentionDays)
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), logFilePrefix), logFileSuffix)
		day, err := time.Parse(logFileDateLayout, name)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// logSinks is what main holds on to after setupLogging.
type logSinks struct {
	console *consoleOutput
	file    *dayFileHook // nil when logging.dir is unset or unusable
}

// setupLogging configures the standard logrus logger. The returned sinks are
// usable even when the file side failed; the error says why it is off.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logSinks, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(lineFormatter{})
	sinks := &logSinks{console: &consoleOutput{w: console}}
	logrus.SetOutput(sinks.console)
	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))

	if strings.TrimSpace(cfg.Dir) == "" {
		return sinks, nil
	}
	hook, err := newDayFileHook(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return sinks, err
	}
	if err := pruneLogs(hook.dir, time.Now(), hook.retention); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: prune %s: %v\n", hook.dir, err)
	}
	sinks.file = hook
	logrus.AddHook(hook)
	return sinks, nil
}

// SetConsole redirects console output, e.g. to the dashboard system pane.
func (s *logSinks) SetConsole(w io.Writer) {
	s.console.set(w)
}

// WriteFileOnly records a line in the day file without echoing it to the
// console; the status summary uses it while a front end owns the terminal.
func (s *logSinks) WriteFileOnly(line string, now time.Time) {
	if s.file == nil {
		return
	}
	s.file.write(now, []byte(now.UTC().Format(logTimestampLayout)+" "+line+"\n"))
}

func (s *logSinks) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
