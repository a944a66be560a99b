package logging

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logrus instance. It writes to stderr until
// InitLogger is called.
var Logger = logrus.New()
var once sync.Once

// CustomFormatter renders one line per entry with the event source, level, a
// fresh event UUID, the message, any structured fields and the caller.
type CustomFormatter struct {
	SystemName string
	Location   *time.Location
}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	localTime := entry.Time.In(loc)

	fmt.Fprintf(b, "Date: %s, Time: %s, ", localTime.Format("2006-01-02"), localTime.Format("15:04:05"))
	fmt.Fprintf(b, "Event Source: %s, ", f.SystemName)
	fmt.Fprintf(b, "Event Type: %s, ", strings.ToUpper(entry.Level.String()))
	fmt.Fprintf(b, "Event ID: %s, ", uuid.New().String())
	fmt.Fprintf(b, "Message: %s", entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, ", %s=%v", k, entry.Data[k])
		}
	}

	if entry.HasCaller() {
		fmt.Fprintf(b, ", Location: %s:%d in %s", filepath.Base(entry.Caller.File), entry.Caller.Line, entry.Caller.Function)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

type Options struct {
	SystemName string
	File       string
	Level      string
	Stdout     bool
	Timezone   string
}

// InitLogger configures Logger once. Later calls are no-ops.
func InitLogger(opts Options) {
	once.Do(func() {
		var writers []io.Writer
		var logFile *lumberjack.Logger

		if opts.File != "" {
			if dir := filepath.Dir(opts.File); dir != "." {
				if err := os.MkdirAll(dir, 0700); err != nil {
					logrus.Fatalf("Event ID: LOG_DIR_CREATE_FAILED, Description: Failed to create log directory: %v", err)
				}
			}
			logFile = &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
			writers = append(writers, logFile)
		}
		if opts.Stdout || len(writers) == 0 {
			writers = append(writers, os.Stdout)
		}
		Logger.SetOutput(io.MultiWriter(writers...))

		loc, err := time.LoadLocation(opts.Timezone)
		if err != nil || opts.Timezone == "" {
			loc = time.UTC
		}
		Logger.SetFormatter(&CustomFormatter{SystemName: opts.SystemName, Location: loc})

		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		Logger.SetLevel(level)
		Logger.SetReportCaller(true)

		if logFile != nil {
			Logger.Infof("Event ID: LOGGER_INITIALIZED, Description: Logger initialized for %s, output to: %s", opts.SystemName, logFile.Filename)
		} else {
			Logger.Infof("Event ID: LOGGER_INITIALIZED, Description: Logger initialized for %s, output to stdout", opts.SystemName)
		}
	})
}
