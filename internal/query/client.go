// Package query reads server resources through the local cache, fetching
// whatever is missing or stale, and performs optimistic writes.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/clock"
	"github.com/matheus3301/parley/internal/store"
	chatsync "github.com/matheus3301/parley/internal/sync"
)

// Backend is the request/response API. *backend.Client satisfies it.
type Backend interface {
	FetchChats(ctx context.Context) ([]store.ChatSummary, error)
	FetchMessages(ctx context.Context, chatID, cursor string) (store.Page, error)
	FetchChatDetails(ctx context.Context, chatID string) (store.ChatDetails, error)
	FetchContacts(ctx context.Context) ([]store.Contact, error)
	FetchPendingRequests(ctx context.Context) ([]store.PendingRequest, error)
	PostMessage(ctx context.Context, chatID, content, clientID string) (store.Message, error)
}

type Client struct {
	cache       *store.Cache
	backend     Backend
	bus         *bus.Bus
	clock       clock.Clock
	log         *zap.Logger
	localUserID string
	flight      singleflight.Group
}

func New(cache *store.Cache, backend Backend, b *bus.Bus, clk clock.Clock, log *zap.Logger, localUserID string) *Client {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cache:       cache,
		backend:     backend,
		bus:         b,
		clock:       clk,
		log:         log,
		localUserID: localUserID,
	}
}

// fetchTimeout bounds a shared fetch, which outlives the caller that
// started it.
const fetchTimeout = 30 * time.Second

// fetchInto returns the cached value under key, or runs fetch and caches its
// result when the entry is missing or stale. Concurrent callers for the same
// key share one fetch; a caller that gives up does not cancel it for the
// others.
func fetchInto[T any](ctx context.Context, c *Client, key store.Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, stale, err := store.Load[T](c.cache, key); err == nil && !stale {
		return v, nil
	}
	ch := c.flight.DoChan(string(key), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		fresh, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, fresh)
		return fresh, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Client) Chats(ctx context.Context) ([]store.ChatSummary, error) {
	return fetchInto(ctx, c, store.KeyChats, func(ctx context.Context) ([]store.ChatSummary, error) {
		chats, err := c.backend.FetchChats(ctx)
		if err != nil {
			return nil, err
		}
		chatsync.SortChats(chats)
		return chats, nil
	})
}

// Messages returns the loaded history of chatID. A missing or stale cache
// is replaced by the most recent page.
func (c *Client) Messages(ctx context.Context, chatID string) (store.MessagePages, error) {
	return fetchInto(ctx, c, store.MessagesKey(chatID), func(ctx context.Context) (store.MessagePages, error) {
		page, err := c.backend.FetchMessages(ctx, chatID, "")
		if err != nil {
			return store.MessagePages{}, err
		}
		return store.MessagePages{Pages: []store.Page{page}}, nil
	})
}

// LoadMore appends the next older page. It reports false when the history
// is exhausted.
func (c *Client) LoadMore(ctx context.Context, chatID string) (store.MessagePages, bool, error) {
	mp, err := c.Messages(ctx, chatID)
	if err != nil {
		return store.MessagePages{}, false, err
	}
	cursor := mp.NextCursor()
	if cursor == "" {
		return mp, false, nil
	}
	page, err := c.backend.FetchMessages(ctx, chatID, cursor)
	if err != nil {
		return mp, true, err
	}
	store.Modify(c.cache, store.MessagesKey(chatID), func(cur store.MessagePages) (store.MessagePages, bool) {
		// another caller already appended this page
		if cur.NextCursor() != cursor {
			return cur, false
		}
		return store.MessagePages{Pages: append(slices.Clone(cur.Pages), page)}, true
	})
	mp, _, err = store.Load[store.MessagePages](c.cache, store.MessagesKey(chatID))
	if err != nil {
		return store.MessagePages{}, false, err
	}
	return mp, mp.NextCursor() != "", nil
}

func (c *Client) ChatDetails(ctx context.Context, chatID string) (store.ChatDetails, error) {
	return fetchInto(ctx, c, store.ChatDetailsKey(chatID), func(ctx context.Context) (store.ChatDetails, error) {
		return c.backend.FetchChatDetails(ctx, chatID)
	})
}

func (c *Client) Contacts(ctx context.Context) ([]store.Contact, error) {
	return fetchInto(ctx, c, store.KeyContacts, c.backend.FetchContacts)
}

func (c *Client) PendingRequests(ctx context.Context) ([]store.PendingRequest, error) {
	return fetchInto(ctx, c, store.KeyPendingRequests, c.backend.FetchPendingRequests)
}

// Prefetch warms the chat list, contacts and pending requests concurrently.
func (c *Client) Prefetch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := c.Chats(ctx); return err })
	g.Go(func() error { _, err := c.Contacts(ctx); return err })
	g.Go(func() error { _, err := c.PendingRequests(ctx); return err })
	return g.Wait()
}

// SendMessage inserts an optimistic placeholder, posts the message and
// reconciles the placeholder with the server's copy. On failure the
// placeholder is rolled back and a notify.error is published.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (store.Message, error) {
	if content == "" {
		return store.Message{}, errors.New("empty message")
	}
	now := c.clock.Now()
	sender := c.localUserID
	tempID := store.OptimisticPrefix + uuid.NewString()
	optimistic := store.Message{
		ID:        tempID,
		ChatID:    chatID,
		SenderID:  &sender,
		Type:      "text",
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := store.MessagesKey(chatID)
	store.Modify(c.cache, key, func(mp store.MessagePages) (store.MessagePages, bool) {
		return prependMessage(mp, optimistic), true
	})

	msg, err := c.backend.PostMessage(ctx, chatID, content, tempID)
	if err != nil {
		c.log.Warn("send failed", zap.String("chat_id", chatID), zap.Error(err))
		store.Modify(c.cache, key, func(mp store.MessagePages) (store.MessagePages, bool) {
			return removeMessage(mp, tempID)
		})
		c.bus.Notify(bus.KindNotifyError, chatID, "Failed to send message")
		return store.Message{}, fmt.Errorf("send message: %w", err)
	}

	store.Modify(c.cache, key, func(mp store.MessagePages) (store.MessagePages, bool) {
		next, outcome := chatsync.ApplyMessage(mp, msg, tempID)
		return next, outcome != chatsync.Duplicate
	})
	store.Modify(c.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
		return chatsync.ApplyChatMessage(chats, msg, c.localUserID)
	})
	return msg, nil
}

func prependMessage(mp store.MessagePages, m store.Message) store.MessagePages {
	out := store.MessagePages{Pages: slices.Clone(mp.Pages)}
	if len(out.Pages) == 0 {
		out.Pages = []store.Page{{}}
	}
	out.Pages[0].Items = append([]store.Message{m}, out.Pages[0].Items...)
	return out
}

func removeMessage(mp store.MessagePages, id string) (store.MessagePages, bool) {
	for pi, page := range mp.Pages {
		i := slices.IndexFunc(page.Items, func(m store.Message) bool { return m.ID == id })
		if i < 0 {
			continue
		}
		out := store.MessagePages{Pages: slices.Clone(mp.Pages)}
		out.Pages[pi].Items = slices.Delete(slices.Clone(page.Items), i, i+1)
		return out, true
	}
	return mp, false
}
