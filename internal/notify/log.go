package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/savino/classeviva-HA-custom-integration/internal/metrics"
)

// Log records events in the process log. Used when no Telegram chat is
// configured, so new-content detection stays observable.
type Log struct {
	log *zap.SugaredLogger
}

func NewLog(log *zap.SugaredLogger) *Log { return &Log{log: log} }

func (l *Log) NewDidactics(_ context.Context, ev DidacticsEvent) {
	l.log.Infow("new didactics item", "teacher", ev.Teacher, "folder", ev.Folder, "item", ev.ItemName, "shared", ev.ShareDate)
	metrics.Notifications.WithLabelValues("didactics").Inc()
}

func (l *Log) NewNoticeboard(_ context.Context, ev NoticeboardEvent) {
	l.log.Infow("new noticeboard item", "title", ev.Title, "author", ev.Author, "category", ev.Category, "begin", ev.Begin)
	metrics.Notifications.WithLabelValues("noticeboard").Inc()
}

func (l *Log) NewAgenda(_ context.Context, ev AgendaEvent) {
	l.log.Infow("new agenda event", "subject", ev.Subject, "notes", ev.Notes, "begin", ev.Begin, "end", ev.End)
	metrics.Notifications.WithLabelValues("agenda").Inc()
}

func (l *Log) StudentAgenda(_ context.Context, ev AgendaEvent) {
	l.log.Infow("new agenda event concerning the student", "subject", ev.Subject, "notes", ev.Notes, "begin", ev.Begin, "end", ev.End)
	metrics.Notifications.WithLabelValues("student_agenda").Inc()
}
