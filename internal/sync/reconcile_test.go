package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/parley/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func msg(id, sender, content string, at time.Time) store.Message {
	return store.Message{ID: id, ChatID: "c1", SenderID: ptr(sender), Type: "text", Content: content, CreatedAt: at, UpdatedAt: at}
}

func pages(items ...store.Message) store.MessagePages {
	return store.MessagePages{Pages: []store.Page{{Items: items, NextCursor: "older"}}}
}

func ids(mp store.MessagePages) []string {
	var out []string
	for _, m := range mp.Messages() {
		out = append(out, m.ID)
	}
	return out
}

func TestApplyMessageIdempotent(t *testing.T) {
	m := msg("m1", "u2", "hi", t0)
	once, outcome := ApplyMessage(pages(), m, "")
	require.Equal(t, Inserted, outcome)

	twice, outcome := ApplyMessage(once, m, "")
	assert.Equal(t, Duplicate, outcome)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"m1"}, ids(twice))
}

func TestApplyMessagePrependsToFirstPage(t *testing.T) {
	mp := store.MessagePages{Pages: []store.Page{
		{Items: []store.Message{msg("m2", "u2", "b", t0)}, NextCursor: "x"},
		{Items: []store.Message{msg("m1", "u2", "a", t0)}},
	}}
	out, outcome := ApplyMessage(mp, msg("m3", "u2", "c", t0.Add(time.Minute)), "")
	assert.Equal(t, Inserted, outcome)
	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(out))
	assert.Equal(t, "x", out.Pages[0].NextCursor)
	assert.Equal(t, []string{"m2", "m1"}, ids(mp), "input must not be mutated")
}

func TestApplyMessageConfirmsOptimisticInPlace(t *testing.T) {
	mp := pages(
		msg("m9", "u2", "other", t0.Add(2*time.Second)),
		msg("temp-a", "me", "hello", t0.Add(time.Second)),
		msg("m8", "u2", "older", t0),
	)
	out, outcome := ApplyMessage(mp, msg("m10", "me", "hello", t0.Add(3*time.Second)), "")
	assert.Equal(t, Confirmed, outcome)
	assert.Equal(t, []string{"m9", "m10", "m8"}, ids(out))
}

func TestApplyMessageConfirmsOldestMatch(t *testing.T) {
	mp := pages(
		msg("temp-new", "me", "ok", t0.Add(time.Second)),
		msg("temp-old", "me", "ok", t0),
	)
	out, _ := ApplyMessage(mp, msg("m1", "me", "ok", t0), "")
	assert.Equal(t, []string{"temp-new", "m1"}, ids(out))

	out, _ = ApplyMessage(out, msg("m2", "me", "ok", t0), "")
	assert.Equal(t, []string{"m2", "m1"}, ids(out))
}

func TestApplyMessagePrefersClientID(t *testing.T) {
	mp := pages(
		msg("temp-b", "me", "ok", t0.Add(time.Second)),
		msg("temp-a", "me", "ok", t0),
	)
	out, outcome := ApplyMessage(mp, msg("m1", "me", "ok", t0), "temp-b")
	assert.Equal(t, Confirmed, outcome)
	assert.Equal(t, []string{"m1", "temp-a"}, ids(out))
}

func TestApplyMessageNoOptimisticForOtherSender(t *testing.T) {
	mp := pages(msg("temp-a", "me", "ok", t0))
	out, outcome := ApplyMessage(mp, msg("m1", "u2", "ok", t0), "")
	assert.Equal(t, Inserted, outcome)
	assert.Equal(t, []string{"m1", "temp-a"}, ids(out))
}

func TestApplyChatMessageUnread(t *testing.T) {
	chats := []store.ChatSummary{{ID: "c1", UnreadCount: 2}}

	out, ok := ApplyChatMessage(chats, msg("m1", "u2", "hi", t0), "me")
	require.True(t, ok)
	assert.Equal(t, 3, out[0].UnreadCount)
	assert.Equal(t, "hi", out[0].LastMessage)
	assert.Equal(t, "m1", out[0].LastMessageID)

	out, _ = ApplyChatMessage(out, msg("m2", "me", "yo", t0.Add(time.Second)), "me")
	assert.Equal(t, 3, out[0].UnreadCount, "own messages never bump unread")

	again, ok := ApplyChatMessage(out, msg("m2", "me", "yo", t0.Add(time.Second)), "me")
	assert.False(t, ok)
	assert.Equal(t, out, again)
	assert.Equal(t, 2, chats[0].UnreadCount)
}

func TestApplyChatMessageSortStability(t *testing.T) {
	t1, t2, t3 := t0, t0.Add(time.Minute), t0.Add(2*time.Minute)
	chats := []store.ChatSummary{
		{ID: "B", LastMessageAt: &t2},
		{ID: "A", LastMessageAt: &t1},
		{ID: "E"},
	}
	m := msg("m1", "u2", "hi", t3)
	m.ChatID = "A"
	out, ok := ApplyChatMessage(chats, m, "me")
	require.True(t, ok)
	assert.Equal(t, "A", out[0].ID)
	assert.Equal(t, "B", out[1].ID)
	assert.Equal(t, "E", out[2].ID)
}

func TestSortChatsStableOnTies(t *testing.T) {
	at := t0
	chats := []store.ChatSummary{{ID: "x"}, {ID: "a", LastMessageAt: &at}, {ID: "b", LastMessageAt: &at}, {ID: "y"}}
	SortChats(chats)
	var got []string
	for _, c := range chats {
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{"a", "b", "x", "y"}, got)
}

func TestApplyEdit(t *testing.T) {
	mp := store.MessagePages{Pages: []store.Page{
		{Items: []store.Message{msg("m2", "u2", "b", t0)}},
		{Items: []store.Message{msg("m1", "u2", "a", t0)}},
	}}
	edited := msg("m1", "u2", "a!", t0)
	edited.EditedAt = ptr(t0.Add(time.Hour))
	edited.UpdatedAt = t0.Add(time.Hour)

	out, ok := ApplyEdit(mp, edited)
	require.True(t, ok)
	assert.Equal(t, "a!", out.Pages[1].Items[0].Content)
	assert.Equal(t, "a", mp.Pages[1].Items[0].Content)

	_, ok = ApplyEdit(out, edited)
	assert.False(t, ok)
}

func TestApplyChatEditOnlyForLastMessage(t *testing.T) {
	at := t0
	chats := []store.ChatSummary{
		{ID: "c1", LastMessageID: "m2", LastMessage: "old"},
		{ID: "c2", LastMessage: "other"},
	}
	_, ok := ApplyChatEdit(chats, msg("m1", "u2", "new", t0))
	assert.False(t, ok, "editing an older message keeps the summary")

	out, ok := ApplyChatEdit(chats, msg("m2", "u2", "new", t0))
	require.True(t, ok)
	assert.Equal(t, "new", out[0].LastMessage)

	chats[0].LastMessageID = ""
	chats[0].LastMessageAt = &at
	out, ok = ApplyChatEdit(chats, msg("m2", "u2", "new", t0))
	require.True(t, ok, "falls back to timestamp match")
	assert.Equal(t, "new", out[0].LastMessage)
}

func TestApplyDeleteFirstWins(t *testing.T) {
	mp := pages(msg("m1", "u2", "a", t0))
	first := t0.Add(time.Minute)
	out, ok := ApplyDelete(mp, "m1", first)
	require.True(t, ok)

	out, ok = ApplyDelete(out, "m1", t0.Add(time.Hour))
	assert.False(t, ok)
	assert.True(t, out.Pages[0].Items[0].DeletedAt.Equal(first))

	_, ok = ApplyDelete(out, "missing", t0)
	assert.False(t, ok)
}

func TestReactionInvariant(t *testing.T) {
	alice := store.ReactionUser{ID: "alice", Name: "Alice"}
	bob := store.ReactionUser{ID: "bob", Name: "Bob"}
	mp := pages(msg("m1", "u2", "a", t0))

	check := func(mp store.MessagePages) {
		t.Helper()
		for _, r := range mp.Pages[0].Items[0].Reactions {
			assert.NotEmpty(t, r.Users, "empty aggregate for %s", r.Emoji)
			assert.Equal(t, len(r.Users), r.Count)
		}
	}

	mp, _ = ApplyReactionAdded(mp, "m1", "👍", alice)
	mp, _ = ApplyReactionAdded(mp, "m1", "👍", bob)
	check(mp)
	same, ok := ApplyReactionAdded(mp, "m1", "👍", alice)
	assert.False(t, ok)
	assert.Equal(t, mp, same)
	mp, _ = ApplyReactionAdded(mp, "m1", "🎉", alice)
	check(mp)
	require.Len(t, mp.Pages[0].Items[0].Reactions, 2)
	assert.Equal(t, 2, mp.Pages[0].Items[0].Reactions[0].Count)

	mp, ok = ApplyReactionRemoved(mp, "m1", "👍", "alice")
	require.True(t, ok)
	check(mp)
	assert.Equal(t, 1, mp.Pages[0].Items[0].Reactions[0].Count)

	_, ok = ApplyReactionRemoved(mp, "m1", "👍", "alice")
	assert.False(t, ok)

	mp, _ = ApplyReactionRemoved(mp, "m1", "🎉", "alice")
	check(mp)
	require.Len(t, mp.Pages[0].Items[0].Reactions, 1)
	assert.Equal(t, "👍", mp.Pages[0].Items[0].Reactions[0].Emoji)

	mp, _ = ApplyReactionRemoved(mp, "m1", "👍", "bob")
	assert.Empty(t, mp.Pages[0].Items[0].Reactions)
}

func TestChatListPatches(t *testing.T) {
	chats := []store.ChatSummary{
		{ID: "d1", Type: store.ChatDirect, OtherUserID: "u2", UnreadCount: 4},
		{ID: "g1", Type: store.ChatGroup, OtherUserID: "u2"},
	}

	out, ok := SetOtherUserOnline(chats, "u2", true)
	require.True(t, ok)
	assert.True(t, out[0].OtherUserOnline)
	assert.False(t, out[1].OtherUserOnline, "group chats are not patched")

	out, ok = ResetUnread(out, "d1")
	require.True(t, ok)
	assert.Equal(t, 0, out[0].UnreadCount)
	_, ok = ResetUnread(out, "d1")
	assert.False(t, ok)

	out, ok = RemoveChat(out, "g1")
	require.True(t, ok)
	assert.Len(t, out, 1)
	_, ok = RemoveChat(out, "g1")
	assert.False(t, ok)
	assert.Len(t, chats, 2)
}
