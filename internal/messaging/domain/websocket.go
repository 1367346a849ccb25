package domain

// Action websocket request action
type Action string

const (
	// ListThreads websocket action list_threads
	ListThreads Action = "list_threads"
	// GetThread websocket action get_thread
	GetThread Action = "get_thread"
	// ListMessages websocket action list_messages
	ListMessages Action = "list_messages"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"
	// MarkRead websocket action mark_read
	MarkRead Action = "mark_read"
	// Search websocket action search
	Search Action = "search"
	// UnreadCount websocket action unread_count
	UnreadCount Action = "unread_count"

	// SubscribeThreadList websocket action subscribe_thread_list
	SubscribeThreadList Action = "subscribe_thread_list"
	// SubscribeThread websocket action subscribe_thread
	SubscribeThread Action = "subscribe_thread"
	// UnsubscribeThread websocket action unsubscribe_thread
	UnsubscribeThread Action = "unsubscribe_thread"

	// NotifyStale server push: a cached view went stale
	NotifyStale Action = "notify_stale"
	// NotifyThreadList server push: refreshed thread list
	NotifyThreadList Action = "notify_thread_list"
	// NotifyThread server push: refreshed open thread page
	NotifyThread Action = "notify_thread"
)

// WSRequest websocket Request
type WSRequest struct {
	Action         string `json:"action"`
	OrganizationID string `json:"organization_id"`
	ThreadID       string `json:"thread_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
	Query          string `json:"query"`
	Cursor         string `json:"cursor"`
	PageSize       int    `json:"page_size"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    int                    `json:"code,omitempty"`
}
