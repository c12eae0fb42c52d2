package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации ("debug", "INFO", ...).
// Пустая строка означает INFO.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("неизвестный уровень логирования: %q", s)
	}
}

// Options задаёт параметры создания новых логгеров.
// Пустой Dir отключает запись в файлы (только консоль).
type Options struct {
	Dir          string
	ConsoleLevel LogLevel
	FileLevel    LogLevel
	Console      io.Writer
}

var (
	optionsMu sync.RWMutex
	options   = Options{ConsoleLevel: INFO, FileLevel: DEBUG}
)

// Configure устанавливает параметры для всех логгеров, созданных после вызова.
func Configure(opts Options) {
	optionsMu.Lock()
	defer optionsMu.Unlock()
	options = opts
}

func currentOptions() Options {
	optionsMu.RLock()
	defer optionsMu.RUnlock()
	return options
}

// Logger представляет логгер отдельного компонента
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

// Глобальный логгер по умолчанию (консоль, INFO)
var defaultLogger = &Logger{
	consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
	minConsoleLevel: INFO,
	minFileLevel:    ERROR,
}

// NewLogger создаёт логгер компонента с текущими Options
func NewLogger(component string) (*Logger, error) {
	opts := currentOptions()

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}

	logger := &Logger{
		component:       component,
		consoleLogger:   log.New(console, prefix, log.LstdFlags),
		minConsoleLevel: opts.ConsoleLevel,
		minFileLevel:    opts.FileLevel,
	}

	if opts.Dir == "" {
		return logger, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", opts.Dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	name := component
	if name == "" {
		name = "terrain"
	}
	filename := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", name, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	logger.file = file
	logger.fileLogger = log.New(file, prefix, log.LstdFlags)
	return logger, nil
}

// NewWriterLogger создаёт логгер, пишущий только в w. Удобен для тестов и CLI.
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, prefix, 0),
		minConsoleLevel: level,
		minFileLevel:    ERROR,
	}
}

// InitDefaultLogger инициализирует логгер по умолчанию
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultLogger = logger
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию
func CloseDefaultLogger() {
	if defaultLogger != nil {
		defaultLogger.Close()
	}
}

// Close закрывает файл логов, если он открыт
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// Enabled сообщает, будет ли сообщение уровня level куда-либо записано
func (l *Logger) Enabled(level LogLevel) bool {
	if level >= l.minConsoleLevel {
		return true
	}
	return l.fileLogger != nil && level >= l.minFileLevel
}

func (l *Logger) logMessage(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}

	message := fmt.Sprintf("[%s] %s", level.String(), fmt.Sprintf(format, args...))

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if l.consoleLogger != nil && level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.logMessage(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.logMessage(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.logMessage(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.logMessage(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.logMessage(ERROR, format, args...) }

// Функции глобального логгера

func Trace(format string, args ...interface{}) { defaultLogger.logMessage(TRACE, format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.logMessage(DEBUG, format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.logMessage(INFO, format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.logMessage(WARN, format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.logMessage(ERROR, format, args...) }

// LogRegion логирует обработку прямоугольной области карты
func LogRegion(l *Logger, op string, left, top, right, bottom int, changed bool) {
	l.Debug("%s [%d,%d)-[%d,%d) changed=%v", op, left, top, right, bottom, changed)
}
