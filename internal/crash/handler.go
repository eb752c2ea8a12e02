package crash

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"tg-eventbot/internal/logger"
)

// RecoverWithStack recovers from a panic and records the stack trace.
func RecoverWithStack(moduleName string) {
	if r := recover(); r != nil {
		stack := debug.Stack()

		logger.Errorf("PANIC in %s: %v", moduleName, r)
		logger.Errorf("Stack trace:\n%s", string(stack))

		// Also write to stderr so container logs always capture it
		fmt.Fprintf(os.Stderr, "[PANIC] %s - %s: %v\n", time.Now().Format("2006-01-02 15:04:05"), moduleName, r)
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(stack))

		logRuntimeInfo()
	}
}

// RecoverWithStackAndExit recovers a fatal panic in the main goroutine,
// records it, and exits non-zero so orchestration notices.
func RecoverWithStackAndExit(moduleName string) {
	if r := recover(); r != nil {
		stack := debug.Stack()

		logger.Errorf("FATAL PANIC in %s: %v", moduleName, r)
		logger.Errorf("Stack trace:\n%s", string(stack))

		fmt.Fprintf(os.Stderr, "[FATAL PANIC] %s - %s: %v\n", time.Now().Format("2006-01-02 15:04:05"), moduleName, r)
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(stack))

		logRuntimeInfo()

		// Give the log writers a moment to flush
		time.Sleep(1 * time.Second)

		os.Exit(1)
	}
}

// SafeGoroutine starts a goroutine with panic recovery.
func SafeGoroutine(name string, fn func()) {
	go func() {
		defer RecoverWithStack(fmt.Sprintf("goroutine-%s", name))
		fn()
	}()
}

func logRuntimeInfo() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Errorf("Runtime info: goroutines=%d, alloc=%dKB, sys=%dKB, numGC=%d",
		runtime.NumGoroutine(), m.Alloc/1024, m.Sys/1024, m.NumGC)
}
