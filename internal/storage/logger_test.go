package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cdpoverride/internal/ctxkeys"
	"cdpoverride/internal/logger"
	"cdpoverride/pkg/model"
)

func TestGormLoggerCarriesExchange(t *testing.T) {
	var buf bytes.Buffer
	gl := NewGormLogger(logger.NewWriter(&buf, "debug"))
	ctx := ctxkeys.WithExchange(context.Background(), "trace-1", "interception-job-3.0")

	gl.Trace(ctx, time.Now(), func() (string, int64) { return "INSERT INTO x", 1 }, errors.New("disk I/O error"))

	line := buf.String()
	assert.Equal(t, "interception-job-3.0", gjson.Get(line, "requestID").String())
	assert.Equal(t, "trace-1", gjson.Get(line, "traceId").String())
	assert.Equal(t, "INSERT INTO x", gjson.Get(line, "sql").String())
	assert.Equal(t, "disk I/O error", gjson.Get(line, "error").String())
}

func TestGormLoggerQuietOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	gl := NewGormLogger(logger.NewWriter(&buf, "debug"))

	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())

	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), func() (string, int64) { return "", 0 }, errors.New("x"))
	assert.Empty(t, buf.String())
}

func TestRecorderPassesExchangeToSQLLog(t *testing.T) {
	var buf bytes.Buffer
	s := openStore(t)
	s.db = s.db.Session(&gorm.Session{Logger: NewGormLogger(logger.NewWriter(&buf, "debug")).LogMode(gormlogger.Info)})

	events := make(chan model.Event, 1)
	events <- model.Event{Type: model.EventFulfilled, TraceID: "trace-7", RequestID: "interception-job-7.0", Disposition: model.DispositionFulfill}
	close(events)
	NewRecorder(s, nil).Run(context.Background(), events)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(gjson.Get(line, "sql").String(), "INSERT") {
			found = true
			assert.Equal(t, "interception-job-7.0", gjson.Get(line, "requestID").String())
			assert.Equal(t, "trace-7", gjson.Get(line, "traceId").String())
		}
	}
	require.True(t, found, buf.String())
}
