package logging

import "runtime"

// callerFileLine walks skip frames up from its own caller.
func callerFileLine(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "?", 0
	}
	return file, line
}

// Debug emits a DEBUG-severity record if the process threshold allows it.
func Debug(values ...any) {
	if !enabled(LevelDebug, CurrentLevel()) {
		return
	}
	file, line := callerFileLine(1)
	Emit(LevelDebug, file, line, values...)
}

// Info emits an INFO-severity record.
func Info(values ...any) {
	if !enabled(LevelInfo, CurrentLevel()) {
		return
	}
	file, line := callerFileLine(1)
	Emit(LevelInfo, file, line, values...)
}

// Warning emits a WARNING-severity record.
func Warning(values ...any) {
	if !enabled(LevelWarning, CurrentLevel()) {
		return
	}
	file, line := callerFileLine(1)
	Emit(LevelWarning, file, line, values...)
}

// Error emits an ERROR-severity record.
func Error(values ...any) {
	if !enabled(LevelError, CurrentLevel()) {
		return
	}
	file, line := callerFileLine(1)
	Emit(LevelError, file, line, values...)
}

// Fatal emits a FATAL-severity record. It does not exit the process;
// callers that want process termination must follow this call with
// their own os.Exit or panic.
func Fatal(values ...any) {
	file, line := callerFileLine(1)
	Emit(LevelFatal, file, line, values...)
}
