// Package logging provides categorized structured logging for impressionism.
// All output goes to stderr so stdout stays reserved for machine-readable
// hook responses.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem a log line originates from.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, directory creation
	CategoryStore     Category = "store"     // Catalog store operations
	CategoryIndex     Category = "index"     // Discovery and indexing passes
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryPolicy    Category = "policy"    // Ruleset VM and runner
	CategoryHook      Category = "hook"      // Hook adapter / event handling
	CategorySession   Category = "session"   // Session and message log writes
)

var (
	root     *zap.SugaredLogger
	loggers  = make(map[Category]*zap.SugaredLogger)
	mu       sync.RWMutex
	initOnce sync.Once
)

// Initialize configures the global logger. verbose enables debug level.
// Safe to call more than once; only the first call takes effect.
func Initialize(verbose bool) {
	initOnce.Do(func() {
		level := zapcore.InfoLevel
		if verbose {
			level = zapcore.DebugLevel
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		)
		root = zap.New(core).Sugar()
	})
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if root == nil {
		Initialize(false)
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	if root != nil {
		_ = root.Sync()
	}
}
