// Package poll implements the poll-diff-and-cache cycle: fetch all five
// collections, diff item ids against the previous cycle, notify new content,
// download fresh attachments, evict stale cache entries and assemble the
// unified snapshot.
package poll

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/savino/classeviva-HA-custom-integration/internal/classeviva"
	"github.com/savino/classeviva-HA-custom-integration/internal/metrics"
	"github.com/savino/classeviva-HA-custom-integration/internal/models"
	"github.com/savino/classeviva-HA-custom-integration/internal/notify"
	"github.com/savino/classeviva-HA-custom-integration/internal/storage"
)

// How far into the future to query agenda events.
const agendaLookahead = 30 * 24 * time.Hour

// DefaultRetention is the cache retention window for didactic attachments.
const DefaultRetention = 60 * 24 * time.Hour

// API is the slice of the remote client the engine needs.
type API interface {
	Grades(ctx context.Context) ([]models.Grade, error)
	Absences(ctx context.Context) ([]models.Absence, error)
	Agenda(ctx context.Context, begin, end time.Time) ([]models.AgendaEvent, error)
	Didactics(ctx context.Context) ([]models.Teacher, error)
	Noticeboard(ctx context.Context) ([]models.NoticeboardItem, error)
	DownloadContent(ctx context.Context, contentID int64) ([]byte, error)
	Session() *classeviva.Session
}

// Error wraps any fetch-phase failure; the cycle that produced it yields no
// snapshot and the previous one stays authoritative.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "poll cycle failed: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

type Engine struct {
	api       API
	store     *storage.Store
	bus       notify.Notifier
	log       *zap.SugaredLogger
	retention time.Duration
	surname   string // override; empty means use the session's last name

	// Touched only inside RunCycle; the scheduler serializes cycles.
	hasBaseline     bool
	seenDidactics   map[int64]struct{}
	seenNoticeboard map[int64]struct{}
	seenAgenda      map[int64]struct{}

	mu   sync.RWMutex
	last *models.Snapshot
}

func NewEngine(api API, store *storage.Store, bus notify.Notifier, log *zap.SugaredLogger, retention time.Duration, surname string) *Engine {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Engine{
		api:             api,
		store:           store,
		bus:             bus,
		log:             log,
		retention:       retention,
		surname:         surname,
		seenDidactics:   map[int64]struct{}{},
		seenNoticeboard: map[int64]struct{}{},
		seenAgenda:      map[int64]struct{}{},
	}
}

// Last returns the last-known-good snapshot, or nil before the first
// successful cycle.
func (e *Engine) Last() *models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// RunCycle performs one full poll cycle. Any fetch failure aborts the whole
// cycle; failures while downloading attachments or evicting cache entries
// are contained per item.
func (e *Engine) RunCycle(ctx context.Context) (*models.Snapshot, error) {
	grades, err := e.api.Grades(ctx)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("grades: %w", err)}
	}
	absences, err := e.api.Absences(ctx)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("absences: %w", err)}
	}
	now := time.Now()
	agenda, err := e.api.Agenda(ctx, now, now.Add(agendaLookahead))
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("agenda: %w", err)}
	}
	didactics, err := e.api.Didactics(ctx)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("didactics: %w", err)}
	}
	noticeboard, err := e.api.Noticeboard(ctx)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("noticeboard: %w", err)}
	}

	surname := e.studentSurname()
	for i := range agenda {
		agenda[i].StudentRelevant = isStudentRelevant(agenda[i], surname)
	}

	// Notifications are suppressed on the first successful cycle after
	// process start to avoid flooding the bus after a restart.
	if e.hasBaseline {
		e.notifyNew(ctx, didactics, noticeboard, agenda)
	}

	// Full replacement: an id that disappeared from the source is forgotten.
	e.seenDidactics = collectDidacticsIDs(didactics)
	e.seenNoticeboard = make(map[int64]struct{}, len(noticeboard))
	for _, n := range noticeboard {
		e.seenNoticeboard[n.ID] = struct{}{}
	}
	e.seenAgenda = make(map[int64]struct{}, len(agenda))
	for _, ev := range agenda {
		e.seenAgenda[ev.ID] = struct{}{}
	}
	e.hasBaseline = true

	e.downloadNew(ctx, didactics)

	if removed := e.store.Cleanup(e.retention); removed > 0 {
		metrics.Evictions.Add(float64(removed))
		e.log.Debugw("evicted stale didactic items", "count", removed)
	}

	attachLocalURLs(e.store, didactics)

	snap := &models.Snapshot{
		Grades:      grades,
		Absences:    absences,
		Agenda:      agenda,
		Didactics:   didactics,
		Noticeboard: noticeboard,
	}
	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()
	return snap, nil
}

// Cleanup runs an eviction pass outside the normal cycle and returns the
// number of removed items.
func (e *Engine) Cleanup(maxAge time.Duration) int {
	removed := e.store.Cleanup(maxAge)
	if removed > 0 {
		metrics.Evictions.Add(float64(removed))
	}
	return removed
}

func (e *Engine) studentSurname() string {
	if e.surname != "" {
		return e.surname
	}
	if s := e.api.Session(); s != nil {
		return s.LastName
	}
	return ""
}

// An agenda event personally concerns the student when the surname appears
// in its notes (e.g. "Rossi – interrogazione orale").
func isStudentRelevant(ev models.AgendaEvent, surname string) bool {
	if surname == "" {
		return false
	}
	return strings.Contains(strings.ToLower(ev.Notes), strings.ToLower(surname))
}

func collectDidacticsIDs(teachers []models.Teacher) map[int64]struct{} {
	ids := map[int64]struct{}{}
	for _, t := range teachers {
		for _, f := range t.Folders {
			for _, it := range f.AgendaItems {
				if id := it.ID(); id != 0 {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids
}

func (e *Engine) notifyNew(ctx context.Context, teachers []models.Teacher, noticeboard []models.NoticeboardItem, agenda []models.AgendaEvent) {
	for _, t := range teachers {
		for _, f := range t.Folders {
			for _, it := range f.AgendaItems {
				if _, ok := e.seenDidactics[it.ID()]; ok {
					continue
				}
				e.bus.NewDidactics(ctx, notify.DidacticsEvent{
					Teacher:   t.Name,
					Folder:    f.Name,
					ItemName:  it.Name(),
					ShareDate: it.ShareDate,
				})
			}
		}
	}
	for _, n := range noticeboard {
		if _, ok := e.seenNoticeboard[n.ID]; ok {
			continue
		}
		e.bus.NewNoticeboard(ctx, notify.NoticeboardEvent{
			Title:    n.Title,
			Author:   n.Author,
			Category: n.Category,
			Begin:    n.Begin,
		})
	}
	for _, ev := range agenda {
		if _, ok := e.seenAgenda[ev.ID]; ok {
			continue
		}
		payload := notify.AgendaEvent{
			Notes:   ev.Notes,
			Author:  ev.Author,
			Subject: ev.Subject,
			Begin:   ev.Begin,
			End:     ev.End,
		}
		e.bus.NewAgenda(ctx, payload)
		if ev.StudentRelevant {
			e.bus.StudentAgenda(ctx, payload)
		}
	}
}

// downloadNew caches every didactics item not yet stored locally.
// Best effort: a single failed attachment never fails the cycle.
func (e *Engine) downloadNew(ctx context.Context, teachers []models.Teacher) {
	for _, t := range teachers {
		for _, f := range t.Folders {
			for _, it := range f.AgendaItems {
				id := it.ID()
				if id == 0 || e.store.Has(id) {
					continue
				}
				data, err := e.api.DownloadContent(ctx, it.DownloadID())
				if err != nil {
					metrics.DownloadErrors.Inc()
					e.log.Warnw("failed to download didactic item", "item_id", id, "err", err)
					continue
				}
				if data == nil {
					continue
				}
				filename := it.Name()
				if filename == "" {
					filename = fmt.Sprintf("item_%d", id)
				}
				if _, err := e.store.Save(id, filename, data); err != nil {
					metrics.DownloadErrors.Inc()
					e.log.Warnw("failed to store didactic item", "item_id", id, "err", err)
					continue
				}
				metrics.Downloads.Inc()
			}
		}
	}
}

func attachLocalURLs(store *storage.Store, teachers []models.Teacher) {
	for ti := range teachers {
		for fi := range teachers[ti].Folders {
			items := teachers[ti].Folders[fi].AgendaItems
			for ii := range items {
				if id := items[ii].ID(); id != 0 {
					items[ii].LocalURL = store.LocalURL(id)
				}
			}
		}
	}
}
