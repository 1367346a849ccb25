package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/metrics"

	"go.uber.org/zap"
)

var errSyncClientClosed = errors.New("sync client closed")

// ThreadSource thread list reads used by SyncClient
type ThreadSource interface {
	ListThreads(ctx context.Context, organizationID, viewerID string) (*domain.ThreadListResult, error)
}

// MessageSource message page reads used by SyncClient
type MessageSource interface {
	ListMessages(ctx context.Context, threadID, viewerID, cursor string, pageSize int) (*domain.MessagePage, error)
}

// DeliveryMarker receipt writes used by SyncClient
type DeliveryMarker interface {
	MarkDelivered(ctx context.Context, messageID, recipientID string) error
	MarkAllDelivered(ctx context.Context, recipientID string, threadIDs []string) error
}

// SyncHooks receive refreshed views. Hooks run while the view is locked
// and must not call back into the client.
type SyncHooks struct {
	OnThreadList func(result *domain.ThreadListResult)
	OnThread     func(threadID string, page *domain.MessagePage)
}

// SyncClient per-viewer realtime view cache. It holds at most one
// organization subscription and one open-thread subscription; change
// events mark the matching view stale and schedule a coalesced refetch.
// Switching organization or thread bumps the view generation so results
// of fetches started before the switch are dropped.
type SyncClient struct {
	viewerID string
	feed     domain.ChangeFeed
	threads  ThreadSource
	messages MessageSource
	delivery DeliveryMarker
	bus      *InvalidationBus
	hooks    SyncHooks
	pageSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	orgID     string
	orgSub    domain.Subscription
	threadID  string
	threadSub domain.Subscription
	closed    bool

	listGen   atomic.Uint64
	threadGen atomic.Uint64

	viewMu    sync.RWMutex
	list      *domain.ThreadListResult
	listStale bool
	page      *domain.MessagePage
	pageStale bool

	listRefresh   *refresher
	threadRefresh *refresher
}

// NewSyncClient create sync client for viewerID
func NewSyncClient(
	viewerID string,
	feed domain.ChangeFeed,
	threads ThreadSource,
	messages MessageSource,
	delivery DeliveryMarker,
	bus *InvalidationBus,
	hooks SyncHooks,
	pageSize int,
) *SyncClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &SyncClient{
		viewerID: viewerID,
		feed:     feed,
		threads:  threads,
		messages: messages,
		delivery: delivery,
		bus:      bus,
		hooks:    hooks,
		pageSize: pageSize,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.listRefresh = newRefresher(c.fetchThreadList)
	c.threadRefresh = newRefresher(c.fetchThread)
	return c
}

// Connect mark every thread of the viewer delivered, called on (re)connect
func (c *SyncClient) Connect(ctx context.Context) error {
	return c.delivery.MarkAllDelivered(ctx, c.viewerID, nil)
}

// SubscribeThreadList watch the organization thread list, replacing any
// previous organization subscription
func (c *SyncClient) SubscribeThreadList(ctx context.Context, organizationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSyncClientClosed
	}

	if c.orgSub != nil {
		c.orgSub.Unsubscribe()
		c.orgSub = nil
	}
	gen := c.listGen.Add(1)
	c.orgID = organizationID
	c.viewMu.Lock()
	c.list, c.listStale = nil, true
	c.viewMu.Unlock()

	topic := domain.OrganizationTopic(organizationID)
	sub, err := c.feed.Subscribe(ctx, topic, func(e domain.ChangeEvent) {
		c.invalidate(ViewThreadList, gen, e)
	})
	if err != nil {
		c.orgID = ""
		return err
	}
	c.orgSub = sub
	c.listRefresh.trigger()
	return nil
}

// OpenThread watch threadID, replacing any previously open thread
func (c *SyncClient) OpenThread(ctx context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSyncClientClosed
	}

	c.closeThreadLocked()
	gen := c.threadGen.Load()
	c.threadID = threadID

	topic := domain.ThreadTopic(threadID)
	sub, err := c.feed.Subscribe(ctx, topic, func(e domain.ChangeEvent) {
		c.invalidate(ViewThread, gen, e)
	})
	if err != nil {
		c.threadID = ""
		return err
	}
	c.threadSub = sub
	c.threadRefresh.trigger()
	return nil
}

// CloseThread stop watching the open thread
func (c *SyncClient) CloseThread() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeThreadLocked()
}

func (c *SyncClient) closeThreadLocked() {
	if c.threadSub != nil {
		c.threadSub.Unsubscribe()
		c.threadSub = nil
	}
	c.threadGen.Add(1)
	c.threadID = ""
	c.viewMu.Lock()
	c.page, c.pageStale = nil, true
	c.viewMu.Unlock()
}

// Close cancel every subscription and pending refetch
func (c *SyncClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()

	if c.orgSub != nil {
		c.orgSub.Unsubscribe()
		c.orgSub = nil
	}
	c.listGen.Add(1)
	c.orgID = ""
	c.closeThreadLocked()
}

// ThreadList cached thread list and whether it is stale
func (c *SyncClient) ThreadList() (*domain.ThreadListResult, bool) {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.list, c.listStale
}

// Thread cached page of the open thread and whether it is stale
func (c *SyncClient) Thread() (*domain.MessagePage, bool) {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.page, c.pageStale
}

// Generation current generation of view
func (c *SyncClient) Generation(view ViewKind) uint64 {
	if view == ViewThread {
		return c.threadGen.Load()
	}
	return c.listGen.Load()
}

func (c *SyncClient) invalidate(view ViewKind, gen uint64, e domain.ChangeEvent) {
	current := c.Generation(view)
	if gen != current {
		return
	}

	c.viewMu.Lock()
	if view == ViewThread {
		c.pageStale = true
	} else {
		c.listStale = true
	}
	c.viewMu.Unlock()

	if c.bus != nil {
		c.bus.Publish(Stale{Topic: e.Topic, View: view, Generation: gen})
	}
	if view == ViewThread {
		c.threadRefresh.trigger()
	} else {
		c.listRefresh.trigger()
	}
}

func (c *SyncClient) fetchThreadList() {
	c.mu.Lock()
	gen, orgID := c.listGen.Load(), c.orgID
	c.mu.Unlock()
	if orgID == "" {
		return
	}

	result, err := c.threads.ListThreads(c.ctx, orgID, c.viewerID)
	if err != nil {
		metrics.SyncRefetches.WithLabelValues(string(ViewThreadList), "error").Inc()
		logger.Log.Warn("sync thread list refetch failed", zap.String("member_id", c.viewerID), zap.Error(err))
		return
	}

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if gen != c.listGen.Load() {
		metrics.SyncRefetches.WithLabelValues(string(ViewThreadList), "discarded").Inc()
		return
	}
	c.list, c.listStale = result, false
	metrics.SyncRefetches.WithLabelValues(string(ViewThreadList), "ok").Inc()
	if c.hooks.OnThreadList != nil {
		c.hooks.OnThreadList(result)
	}
}

func (c *SyncClient) fetchThread() {
	c.mu.Lock()
	gen, threadID := c.threadGen.Load(), c.threadID
	c.mu.Unlock()
	if threadID == "" {
		return
	}

	page, err := c.messages.ListMessages(c.ctx, threadID, c.viewerID, "", c.pageSize)
	if err != nil {
		metrics.SyncRefetches.WithLabelValues(string(ViewThread), "error").Inc()
		logger.Log.Warn("sync thread refetch failed", zap.String("thread_id", threadID), zap.Error(err))
		return
	}

	if !c.storePage(gen, threadID, page) {
		return
	}

	// 畫面上顯示的訊息視為已送達
	for _, m := range page.Messages {
		if m.SenderID == c.viewerID || m.IsDeleted() {
			continue
		}
		if err := c.delivery.MarkDelivered(c.ctx, m.ID, c.viewerID); err != nil {
			logger.Log.Warn("mark delivered failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}

func (c *SyncClient) storePage(gen uint64, threadID string, page *domain.MessagePage) bool {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if gen != c.threadGen.Load() {
		metrics.SyncRefetches.WithLabelValues(string(ViewThread), "discarded").Inc()
		return false
	}
	c.page, c.pageStale = page, false
	metrics.SyncRefetches.WithLabelValues(string(ViewThread), "ok").Inc()
	if c.hooks.OnThread != nil {
		c.hooks.OnThread(threadID, page)
	}
	return true
}

// refresher run fetch with at most one call in flight and one queued
type refresher struct {
	mu      sync.Mutex
	running bool
	dirty   bool
	fetch   func()
}

func newRefresher(fetch func()) *refresher {
	return &refresher{fetch: fetch}
}

func (r *refresher) trigger() {
	r.mu.Lock()
	if r.running {
		r.dirty = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()
	go r.loop()
}

func (r *refresher) loop() {
	for {
		r.fetch()

		r.mu.Lock()
		if !r.dirty {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.dirty = false
		r.mu.Unlock()
	}
}
