// Package stdout implements the observability ports by writing structured
// JSON lines to standard output, for local runs and container deployments
// without a CloudWatch sink.
package stdout

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Logger implements ports.Logger over a plain *log.Logger writing to
// os.Stdout, one JSON object per line.
type Logger struct {
	fields map[string]interface{}
	out    *log.Logger
}

// NewLogger creates a stdout logger with no preset fields.
func NewLogger() *Logger {
	return &Logger{
		fields: map[string]interface{}{},
		out:    log.New(os.Stdout, "", 0),
	}
}

func (l *Logger) Info(msg string, fields ...interface{}) { l.log("info", msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log("error", msg, fields...) }

// WithFields returns a new Logger with fields merged into its base set.
func (l *Logger) WithFields(fields map[string]interface{}) ports.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{fields: merged, out: l.out}
}

func (l *Logger) log(level, msg string, kv ...interface{}) {
	entry := make(map[string]interface{}, len(l.fields)+len(kv)/2+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["message"] = msg
	for k, v := range l.fields {
		entry[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			entry[key] = err.Error()
			continue
		}
		entry[key] = kv[i+1]
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.out.Printf(`{"level":"error","message":"failed to marshal log entry: %v"}`, err)
		return
	}
	l.out.Println(string(data))
}
