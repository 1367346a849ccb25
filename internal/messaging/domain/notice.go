package domain

// NoticeCode user visible soft failure code
type NoticeCode string

const (
	// NoticeSearchFailed search storage error, empty result returned
	NoticeSearchFailed NoticeCode = "search_failed"
	// NoticeListFailed listing storage error, empty result returned
	NoticeListFailed NoticeCode = "list_failed"
	// NoticeUnreadFailed unread count storage error, zero returned
	NoticeUnreadFailed NoticeCode = "unread_failed"
)

// Notice non-blocking notice attached to a degraded read result
type Notice struct {
	Code    NoticeCode `json:"code"`
	Message string     `json:"message"`
}

// NewNotice create notice
func NewNotice(code NoticeCode, message string) *Notice {
	return &Notice{Code: code, Message: message}
}

// ThreadListResult result of ListThreads
type ThreadListResult struct {
	Threads []ThreadSummary `json:"threads"`
	Notice  *Notice         `json:"notice,omitempty"`
}
