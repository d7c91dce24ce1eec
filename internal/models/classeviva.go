package models

// Wire types for the Spaggiari / ClasseViva REST API. Field tags follow the
// remote payloads; derived fields carry their own tags and are never decoded.

type Grade struct {
	ID           int64   `json:"evtId"`
	Subject      string  `json:"subjectDesc"`
	DecimalValue float64 `json:"decimalValue"` // 0 = not gradable
	DisplayValue string  `json:"displayValue"`
	Date         string  `json:"evtDate"`
	Notes        string  `json:"notesForFamily"`
}

type Absence struct {
	ID        int64  `json:"evtId"`
	Date      string `json:"evtDate"`
	Code      string `json:"evtCode"`
	Justified bool   `json:"isJustified"`
	Reason    string `json:"justifReasonDesc"`
}

type AgendaEvent struct {
	ID      int64  `json:"evtId"`
	Subject string `json:"subjectDesc"`
	Author  string `json:"authorName"`
	Begin   string `json:"evtDatetimeBegin"`
	End     string `json:"evtDatetimeEnd"`
	Notes   string `json:"notes"`
	Code    string `json:"evtCode"`
	FullDay bool   `json:"isFullDay"`
	// Set by the poll engine: the student's surname appears in Notes.
	StudentRelevant bool `json:"studentRelevant"`
}

type NoticeboardItem struct {
	ID          int64        `json:"pubId"`
	Title       string       `json:"cntTitle"`
	Author      string       `json:"cntAuthor"`
	Category    string       `json:"cntCategory"`
	Begin       string       `json:"evtBegin"`
	Read        bool         `json:"readStatus"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	FileName string `json:"fileName"`
}

func (n NoticeboardItem) HasAttachment() bool { return len(n.Attachments) > 0 }

// Didactics hierarchy: teacher -> folder -> item.

type Teacher struct {
	Name    string   `json:"teacherName"`
	Folders []Folder `json:"folders"`
}

type Folder struct {
	Name        string          `json:"folderName"`
	LastShared  string          `json:"lastShareDt"`
	AgendaItems []DidacticsItem `json:"agendaItems"`
}

type DidacticsItem struct {
	ItemID      int64  `json:"itemId"`
	ContentID   int64  `json:"contentId"`
	DisplayName string `json:"displayName"`
	ItemName    string `json:"itemName"`
	ShareDate   string `json:"shareDt"`
	// Set by the poll engine: /local/ URL of the cached file, if any.
	LocalURL string `json:"localUrl,omitempty"`
}

// ID is the identifier used for dedup and cache keys: the item id, or the
// content id when the item id is absent.
func (d DidacticsItem) ID() int64 {
	if d.ItemID != 0 {
		return d.ItemID
	}
	return d.ContentID
}

// DownloadID is the identifier to request from the binary endpoint; the
// fallback order mirrors ID.
func (d DidacticsItem) DownloadID() int64 {
	if d.ContentID != 0 {
		return d.ContentID
	}
	return d.ItemID
}

// Name is the item's display name with the same fallbacks the remote UI uses.
func (d DidacticsItem) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ItemName
}

// Snapshot is the unified result of one successful poll cycle. It is
// read-only for consumers; the engine replaces it wholesale each cycle.
type Snapshot struct {
	Grades      []Grade           `json:"grades"`
	Absences    []Absence         `json:"absences"`
	Agenda      []AgendaEvent     `json:"agenda"`
	Didactics   []Teacher         `json:"didactics"`
	Noticeboard []NoticeboardItem `json:"noticeboard"`
}
