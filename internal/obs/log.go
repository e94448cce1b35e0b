package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu           sync.Mutex
	base         = log.New(os.Stdout, "", 0)
	debugEnabled bool
)

// EnableDebug globally enables debug logs.
func EnableDebug(v bool) { debugEnabled = v }

// FileOutput mirrors all log lines into a rotating file alongside stdout.
// maxSize is megabytes per file, maxBackups the retained rotations.
func FileOutput(path string, maxSize, maxBackups, maxAgeDays int, compress bool) {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
	mu.Lock()
	base.SetOutput(io.MultiWriter(os.Stdout, rot))
	mu.Unlock()
}

type Fields map[string]any

func logWith(level, msg string, f Fields) {
	if f == nil {
		f = Fields{}
	}
	f["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	f["level"] = level
	f["msg"] = msg
	b, err := json.Marshal(f)
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		base.Printf("{\"level\":\"error\",\"msg\":\"log marshal failure\",\"err\":%q}", err.Error())
		return
	}
	base.Println(string(b))
}

func Info(msg string, f Fields)  { logWith("info", msg, f) }
func Error(msg string, f Fields) { logWith("error", msg, f) }
func Debug(msg string, f Fields) {
	if debugEnabled {
		logWith("debug", msg, f)
	}
}
