package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Logger implements ports.Logger by writing structured entries to a
// CloudWatch Logs stream it provisions on construction.
type Logger struct {
	client        *cloudwatchlogs.Client
	logGroup      string
	logStream     string
	sequenceToken *string
	baseFields    map[string]interface{}
}

// NewLogger provisions (or reuses) logGroup/a fresh stream within it and
// returns a Logger bound to that stream.
func NewLogger(ctx context.Context, region, logGroup, serviceName string) (*Logger, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for cloudwatch logger: %w", err)
	}

	client := cloudwatchlogs.NewFromConfig(awsCfg)
	logStream := fmt.Sprintf("%s-%d", serviceName, time.Now().Unix())

	l := &Logger{
		client:     client,
		logGroup:   logGroup,
		logStream:  logStream,
		baseFields: map[string]interface{}{"service": serviceName},
	}

	if err := l.ensureLogGroup(ctx); err != nil {
		return nil, fmt.Errorf("ensure log group %q: %w", logGroup, err)
	}
	if err := l.ensureLogStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure log stream %q: %w", logStream, err)
	}

	return l, nil
}

func (l *Logger) Info(msg string, fields ...interface{})  { l.log("info", msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log("error", msg, fields...) }

// WithFields returns a new Logger sharing the same stream, with fields
// merged into its base set.
func (l *Logger) WithFields(fields map[string]interface{}) ports.Logger {
	merged := make(map[string]interface{}, len(l.baseFields)+len(fields))
	for k, v := range l.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		client:        l.client,
		logGroup:      l.logGroup,
		logStream:     l.logStream,
		sequenceToken: l.sequenceToken,
		baseFields:    merged,
	}
}

func (l *Logger) log(level, msg string, kv ...interface{}) {
	entry := make(map[string]interface{}, len(l.baseFields)+len(kv)/2+3)
	for k, v := range l.baseFields {
		entry[k] = v
	}
	entry["level"] = level
	entry["message"] = msg
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
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
		data = []byte(fmt.Sprintf(`{"level":"error","message":"failed to marshal log entry: %v"}`, err))
	}
	l.send(string(data))
}

func (l *Logger) send(message string) {
	input := &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(l.logGroup),
		LogStreamName: aws.String(l.logStream),
		LogEvents: []cwltypes.InputLogEvent{
			{Message: aws.String(message), Timestamp: aws.Int64(time.Now().UnixMilli())},
		},
	}
	if l.sequenceToken != nil {
		input.SequenceToken = l.sequenceToken
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		output, err := l.client.PutLogEvents(ctx, input)
		if err == nil && output.NextSequenceToken != nil {
			l.sequenceToken = output.NextSequenceToken
		}
	}()
}

func (l *Logger) ensureLogGroup(ctx context.Context) error {
	_, err := l.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(l.logGroup),
	})
	if err != nil {
		var exists *cwltypes.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return err
	}
	return nil
}

func (l *Logger) ensureLogStream(ctx context.Context) error {
	_, err := l.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(l.logGroup),
		LogStreamName: aws.String(l.logStream),
	})
	if err != nil {
		var exists *cwltypes.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return err
	}
	return nil
}
