package handlers

import (
	"school_messaging_service/internal/messaging/app"
	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// MessagingHandler REST handler of the messaging use cases
type MessagingHandler struct {
	threadUC  *app.ThreadUseCase
	messageUC *app.MessageUseCase
	tracker   *app.ReceiptTracker
}

// NewMessagingHandler create messaging handler
func NewMessagingHandler(threadUC *app.ThreadUseCase, messageUC *app.MessageUseCase, tracker *app.ReceiptTracker) *MessagingHandler {
	return &MessagingHandler{
		threadUC:  threadUC,
		messageUC: messageUC,
		tracker:   tracker,
	}
}

// StartThreadRequest body of StartThread
type StartThreadRequest struct {
	Participants []domain.Participant `json:"participants"`
}

// SendMessageRequest body of SendMessage
type SendMessageRequest struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// MarkDeliveredRequest body of MarkAllDelivered
type MarkDeliveredRequest struct {
	ThreadIDs []string `json:"thread_ids"`
}

// ListThreads godoc
// @Summary List the viewer's threads of an organization
// @Tags Threads
// @Param orgID path string true "Organization ID"
// @Success 200 {object} domain.ThreadListResult
// @Router /api/v1/orgs/{orgID}/threads [get]
func (h *MessagingHandler) ListThreads(c *fiber.Ctx) error {
	result, err := h.threadUC.ListThreads(c.UserContext(), c.Params("orgID"), middlewares.MemberID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// StartThread godoc
// @Summary Find or create the thread of a participant set
// @Tags Threads
// @Param orgID path string true "Organization ID"
// @Param body body StartThreadRequest true "participants"
// @Success 200 {object} domain.Thread "existing thread"
// @Success 201 {object} domain.Thread "created thread"
// @Router /api/v1/orgs/{orgID}/threads [post]
func (h *MessagingHandler) StartThread(c *fiber.Ctx) error {
	var req StartThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errprocess.ErrInvalidParams.Wrap(err))
	}

	thread, created, err := h.threadUC.StartThread(c.UserContext(), c.Params("orgID"), middlewares.MemberID(c), req.Participants)
	if err != nil {
		return writeError(c, err)
	}
	if created {
		return c.Status(fiber.StatusCreated).JSON(thread)
	}
	return c.JSON(thread)
}

// GetThread godoc
// @Summary Thread summary with unread count
// @Tags Threads
// @Param threadID path string true "Thread ID"
// @Success 200 {object} domain.ThreadSummary
// @Router /api/v1/threads/{threadID} [get]
func (h *MessagingHandler) GetThread(c *fiber.Ctx) error {
	summary, err := h.threadUC.GetThread(c.UserContext(), c.Params("threadID"), middlewares.MemberID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}

// ListMessages godoc
// @Summary One page of thread messages, newest first
// @Tags Messages
// @Param threadID path string true "Thread ID"
// @Param cursor query string false "Next page cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} domain.MessagePage
// @Router /api/v1/threads/{threadID}/messages [get]
func (h *MessagingHandler) ListMessages(c *fiber.Ctx) error {
	page, err := h.messageUC.ListMessages(c.UserContext(), c.Params("threadID"), middlewares.MemberID(c), c.Query("cursor"), c.QueryInt("limit"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

// SendMessage godoc
// @Summary Send a message to a thread
// @Tags Messages
// @Param threadID path string true "Thread ID"
// @Param body body SendMessageRequest true "message"
// @Success 201 {object} domain.Message
// @Router /api/v1/threads/{threadID}/messages [post]
func (h *MessagingHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errprocess.ErrInvalidParams.Wrap(err))
	}

	msg, err := h.messageUC.SendMessage(c.UserContext(), c.Params("threadID"), middlewares.MemberID(c), req.Content, domain.ContentType(req.ContentType))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// DeleteMessage godoc
// @Summary Retract a message sent by the caller
// @Tags Messages
// @Param messageID path string true "Message ID"
// @Success 200 {object} domain.Message
// @Router /api/v1/messages/{messageID} [delete]
func (h *MessagingHandler) DeleteMessage(c *fiber.Ctx) error {
	msg, err := h.messageUC.DeleteMessage(c.UserContext(), c.Params("messageID"), middlewares.MemberID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(msg)
}

// MarkThreadRead godoc
// @Summary Mark every message of the thread read
// @Tags Receipts
// @Param threadID path string true "Thread ID"
// @Success 204
// @Router /api/v1/threads/{threadID}/read [post]
func (h *MessagingHandler) MarkThreadRead(c *fiber.Ctx) error {
	if err := h.threadUC.MarkThreadRead(c.UserContext(), c.Params("threadID"), middlewares.MemberID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SearchInThread godoc
// @Summary Case-insensitive search inside one thread
// @Tags Messages
// @Param threadID path string true "Thread ID"
// @Param q query string true "Query"
// @Success 200 {object} domain.SearchResult
// @Router /api/v1/threads/{threadID}/search [get]
func (h *MessagingHandler) SearchInThread(c *fiber.Ctx) error {
	result, err := h.messageUC.SearchInThread(c.UserContext(), c.Params("threadID"), middlewares.MemberID(c), c.Query("q"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// UnreadCount godoc
// @Summary Total unread messages of the caller
// @Tags Receipts
// @Success 200 {object} domain.UnreadResult
// @Router /api/v1/unread [get]
func (h *MessagingHandler) UnreadCount(c *fiber.Ctx) error {
	result, err := h.threadUC.UnreadCount(c.UserContext(), middlewares.MemberID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// MarkAllDelivered godoc
// @Summary Mark the caller's threads delivered, all threads when empty
// @Tags Receipts
// @Param body body MarkDeliveredRequest false "thread ids"
// @Success 204
// @Router /api/v1/receipts/delivered [post]
func (h *MessagingHandler) MarkAllDelivered(c *fiber.Ctx) error {
	var req MarkDeliveredRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, errprocess.ErrInvalidParams.Wrap(err))
		}
	}
	if err := h.tracker.MarkAllDelivered(c.UserContext(), middlewares.MemberID(c), req.ThreadIDs); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
