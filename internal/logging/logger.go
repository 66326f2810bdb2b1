// Package logging provides category-scoped file-based logging for pod.
// Logs are written to .pod/logs/ with one file per category; nothing is
// written unless debug mode is enabled.
package logging

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a log stream.
type Category string

const (
	CategoryBoot   Category = "boot"
	CategoryMacro  Category = "macro"
	CategoryDeploy Category = "deploy"
	CategoryBuild  Category = "build"
	CategoryDev    Category = "dev"
)

var (
	mu      sync.Mutex
	logsDir string
	debug   bool
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Init sets the logging root and debug gate. Must be called once at
// startup before the first Get.
func Init(workspace string, debugMode bool) error {
	mu.Lock()
	defer mu.Unlock()
	debug = debugMode
	logsDir = filepath.Join(workspace, ".pod", "logs")
	if !debug {
		return nil
	}
	return os.MkdirAll(logsDir, 0o755)
}

// Get returns (or creates) the logger for category. When debug mode is
// disabled, Get returns a no-op logger so call sites never need to guard
// their own logging calls.
func Get(category Category) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	if !debug || logsDir == "" {
		l := zap.NewNop().Sugar()
		loggers[category] = l
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, date+"_"+string(category)+".log")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := zap.NewNop().Sugar()
		loggers[category] = l
		return l
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.DebugLevel)

	l := zap.New(core, zap.Fields(zap.String("category", string(category)))).Sugar()
	loggers[category] = l
	return l
}

// IsDebugMode reports whether logging is currently enabled.
func IsDebugMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

// CloseAll flushes and forgets every cached logger.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
	loggers = make(map[Category]*zap.SugaredLogger)
}
