// Package notify is the outbound notification bus: one event per newly
// discovered item per category. Implementations must be fire-and-forget —
// a failed delivery is reported but never propagated into the poll cycle.
package notify

import "context"

type DidacticsEvent struct {
	Teacher   string
	Folder    string
	ItemName  string
	ShareDate string
}

type NoticeboardEvent struct {
	Title    string
	Author   string
	Category string
	Begin    string
}

type AgendaEvent struct {
	Notes   string
	Author  string
	Subject string
	Begin   string
	End     string
}

type Notifier interface {
	NewDidactics(ctx context.Context, ev DidacticsEvent)
	NewNoticeboard(ctx context.Context, ev NoticeboardEvent)
	NewAgenda(ctx context.Context, ev AgendaEvent)
	// StudentAgenda fires for new agenda events that personally concern the
	// configured student, in addition to NewAgenda.
	StudentAgenda(ctx context.Context, ev AgendaEvent)
}
