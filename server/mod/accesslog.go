package mod

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/metrics"
	xhttp "github.com/omalloc/cellar/pkg/x/http"
)

// HandleAccessLog binds a RequestMetric to every request and, when enabled,
// writes one access log line per request once the response is done.
func HandleAccessLog(opt *conf.ServerAccessLog, next http.HandlerFunc) http.HandlerFunc {
	if opt == nil || !opt.Enabled {
		log.Infof("access-log is turned off")
		return wrap(next, nil)
	}

	if opt.Path == "" {
		log.Warnf("access-log `path` is empty, will be written to stdout")
	}

	logWriter := newAccessLog(opt)
	return wrap(next, func(req *http.Request, rec *xhttp.ResponseRecorder, m *metrics.RequestMetric) {
		logWriter.Info(formatLine(req, rec, m))
	})
}

func wrap(next http.HandlerFunc, write func(*http.Request, *xhttp.ResponseRecorder, *metrics.RequestMetric)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		req, metric := metrics.WithRequestMetric(req)
		recorder := xhttp.NewResponseRecorder(w)

		defer func() {
			metric.SentBytes = recorder.SentBytes()
			if write != nil {
				write(req, recorder, metric)
			}
		}()

		next(recorder, req)
	}
}

// formatLine renders
// remote_addr request_id "method uri proto" status sent_bytes cache_status download_id duration_ms
func formatLine(req *http.Request, rec *xhttp.ResponseRecorder, m *metrics.RequestMetric) string {
	buf := make([]byte, 0, 256)
	buf = append(buf, m.RemoteAddr...)
	buf = append(buf, ' ')
	buf = append(buf, m.RequestID...)
	buf = append(buf, ` "`...)
	buf = append(buf, req.Method...)
	buf = append(buf, ' ')
	buf = append(buf, req.URL.RequestURI()...)
	buf = append(buf, ' ')
	buf = append(buf, req.Proto...)
	buf = append(buf, `" `...)
	buf = strconv.AppendInt(buf, int64(rec.Status()), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendUint(buf, m.SentBytes, 10)
	buf = append(buf, ' ')
	buf = append(buf, dash(m.CacheStatus)...)
	buf = append(buf, ' ')
	buf = append(buf, dash(m.DownloadID)...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, time.Since(m.StartAt).Milliseconds(), 10)
	return string(buf)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newAccessLog(opt *conf.ServerAccessLog) *zap.Logger {
	cfg := zap.NewProductionConfig().EncoderConfig
	cfg.ConsoleSeparator = " "
	cfg.EncodeLevel = func(_ zapcore.Level, _ zapcore.PrimitiveArrayEncoder) {}
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var ws zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
	if opt.Path != "" {
		_ = os.MkdirAll(filepath.Dir(opt.Path), 0o755)
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opt.Path,
			MaxSize:    opt.MaxSize,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAge,
			LocalTime:  true,
			Compress:   opt.Compress,
		})
	}

	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), ws, zapcore.InfoLevel))
}
