package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

// ReportJob 定期把热门词写入日志
type ReportJob struct {
	counter   *Counter
	top       int
	scheduler gocron.Scheduler
}

// NewReportJob 创建并启动定时任务，interval <= 0 时返回 nil
func NewReportJob(counter *Counter, interval time.Duration, top int) (*ReportJob, error) {
	if interval <= 0 {
		return nil, nil
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{entry: logger.L().WithField("component", "scheduler")}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	job := &ReportJob{counter: counter, top: top, scheduler: s}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(job.Report),
		gocron.WithName("analytics-report"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule analytics report: %w", err)
	}

	s.Start()
	logger.L().Infof("Analytics report scheduled every %s", interval)
	return job, nil
}

// Report 输出当前统计
func (j *ReportJob) Report() {
	logger.L().WithField("processed", j.counter.Processed()).Info(FormatTop(j.counter.Top(j.top)))
}

// Stop 停止定时任务
func (j *ReportJob) Stop() error {
	if j == nil {
		return nil
	}
	if err := j.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// FormatTop 格式化热门词
func FormatTop(words []WordCount) string {
	if len(words) == 0 {
		return "No words recorded yet"
	}
	var b strings.Builder
	b.WriteString("Top words:")
	for _, w := range words {
		fmt.Fprintf(&b, " %s=%d", w.Word, w.Count)
	}
	return b.String()
}

// gocronLogger 将 gocron 日志转到 logrus
type gocronLogger struct {
	entry *logrus.Entry
}

func (l gocronLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l gocronLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l gocronLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }

// with 将 key/value 参数转换为日志字段
func (l gocronLogger) with(args []any) *logrus.Entry {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	if len(args)%2 == 1 {
		fields["extra"] = args[len(args)-1]
	}
	return l.entry.WithFields(fields)
}
