package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	customlogger "tg-eventbot/internal/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// GormLogger adapts gorm's logging to the bot's leveled logger, so SQL
// traces rotate with the rest of the log files.
type GormLogger struct {
	LogLevel                  logger.LogLevel
	SlowThreshold             time.Duration
	SkipCallerLookup          bool
	IgnoreRecordNotFoundError bool
}

// NewGormLogger maps the bot's log level onto gorm's levels.
func NewGormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel

	switch level {
	case "DEBUG":
		logLevel = logger.Info
	case "INFO":
		logLevel = logger.Info
	case "WARNING", "ERROR":
		logLevel = logger.Warn
	case "FATAL":
		logLevel = logger.Error
	default:
		logLevel = logger.Info
	}

	return &GormLogger{
		LogLevel:                  logLevel,
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}
}

// LogMode sets the log level
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info logs info level messages
func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		customlogger.Infof(msg, data...)
	}
}

// Warn logs warning level messages
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		customlogger.Warningf(msg, data...)
	}
}

// Error logs error level messages
func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		customlogger.Errorf(msg, data...)
	}
}

// Trace records SQL execution
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	var source string
	if !l.SkipCallerLookup {
		source = utils.FileWithLineNum()
	}

	switch {
	case err != nil && l.LogLevel >= logger.Error && (!errors.Is(err, gorm.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError):
		if source != "" {
			customlogger.Errorf("[%.3fms] [%s] %s; error=%v", float64(elapsed.Nanoseconds())/1e6, source, sql, err)
		} else {
			customlogger.Errorf("[%.3fms] %s; error=%v", float64(elapsed.Nanoseconds())/1e6, sql, err)
		}
	case elapsed > l.SlowThreshold && l.SlowThreshold != 0 && l.LogLevel >= logger.Warn:
		slowLog := fmt.Sprintf("SLOW SQL >= %v", l.SlowThreshold)
		if source != "" {
			customlogger.Warningf("[%.3fms] [%s] %s; %s, rows=%v", float64(elapsed.Nanoseconds())/1e6, source, sql, slowLog, rows)
		} else {
			customlogger.Warningf("[%.3fms] %s; %s, rows=%v", float64(elapsed.Nanoseconds())/1e6, sql, slowLog, rows)
		}
	case l.LogLevel == logger.Info:
		if source != "" {
			customlogger.Debugf("[%.3fms] [%s] %s; rows=%v", float64(elapsed.Nanoseconds())/1e6, source, sql, rows)
		} else {
			customlogger.Debugf("[%.3fms] %s; rows=%v", float64(elapsed.Nanoseconds())/1e6, sql, rows)
		}
	}
}
