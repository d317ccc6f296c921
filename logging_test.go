package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"radiolog/config"
)

func TestLineFormatter(t *testing.T) {
	e := &logrus.Entry{
		Time:    time.Date(2026, time.January, 22, 12, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "Multiplexer: cell-info response stalled\n",
		Data:    logrus.Fields{"subscription": 2, "component": "source"},
	}
	out, err := lineFormatter{}.Format(e)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	want := "2026/01/22 12:30:00 WARNING Multiplexer: cell-info response stalled component=source subscription=2\n"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	e.Level, e.Data = logrus.InfoLevel, nil
	out, _ = lineFormatter{}.Format(e)
	if string(out) != "2026/01/22 12:30:00 Multiplexer: cell-info response stalled\n" {
		t.Fatalf("info lines carry no level tag: %q", out)
	}
}

func TestPruneLogsKeepsRetentionWindow(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"radiolog-2026-01-20.log",
		"radiolog-2026-01-21.log",
		"radiolog-2026-01-22.log",
		"radiolog-notes.log",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := pruneLogs(dir, now, 2); err != nil {
		t.Fatalf("pruneLogs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "radiolog-2026-01-20.log")); !os.IsNotExist(err) {
		t.Fatalf("expected oldest day removed, stat err=%v", err)
	}
	for _, name := range []string{"radiolog-2026-01-21.log", "radiolog-2026-01-22.log", "radiolog-notes.log", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestDayFileHookRotates(t *testing.T) {
	dir := t.TempDir()
	hook, err := newDayFileHook(dir, 30)
	if err != nil {
		t.Fatalf("newDayFileHook: %v", err)
	}
	defer hook.Close()

	day1 := time.Date(2026, time.January, 22, 23, 59, 0, 0, time.UTC)
	for _, e := range []*logrus.Entry{
		{Time: day1, Level: logrus.InfoLevel, Message: "first"},
		{Time: day1.Add(2 * time.Minute), Level: logrus.InfoLevel, Message: "second"},
	} {
		if err := hook.Fire(e); err != nil {
			t.Fatalf("Fire: %v", err)
		}
	}
	for name, want := range map[string]string{
		"radiolog-2026-01-22.log": "first",
		"radiolog-2026-01-23.log": "second",
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(data), want) {
			t.Fatalf("%s missing %q: %q", name, want, data)
		}
	}
}

func TestSetupLoggingRoutesConsoleAndFile(t *testing.T) {
	defer func() {
		logrus.SetOutput(os.Stderr)
		logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	}()
	dir := t.TempDir()
	var console, pane strings.Builder
	sinks, err := setupLogging(config.LoggingConfig{Level: "debug", Dir: dir, RetentionDays: 1}, &console)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	defer sinks.Close()

	logrus.WithField("subscription", 2).Debug("Multiplexer: started")
	if !strings.Contains(console.String(), "DEBUG Multiplexer: started subscription=2") {
		t.Fatalf("console missing entry: %q", console.String())
	}

	sinks.SetConsole(&pane)
	logrus.Info("Aggregator: monitoring")
	sinks.WriteFileOnly("radiolog dev | 3 events", time.Now())
	if strings.Contains(console.String(), "monitoring") || !strings.Contains(pane.String(), "Aggregator: monitoring") {
		t.Fatalf("console not redirected: console=%q pane=%q", console.String(), pane.String())
	}
	if strings.Contains(pane.String(), "3 events") {
		t.Fatalf("file-only line reached the console: %q", pane.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, logFilePrefix+time.Now().UTC().Format(logFileDateLayout)+logFileSuffix))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, want := range []string{"Multiplexer: started", "Aggregator: monitoring", "3 events"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("file missing %q: %q", want, data)
		}
	}
}
