package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/queue"
)

type messageFixture struct {
	svc       *MessageService
	messages  *memMessages
	platforms *memPlatforms
	reactions *fakeReactionStore
	publisher *fakePublisher
}

func newMessageFixture() *messageFixture {
	f := &messageFixture{
		messages:  newMemMessages(&touches{}),
		platforms: newMemPlatforms(&touches{}),
		reactions: &fakeReactionStore{},
		publisher: &fakePublisher{},
	}
	f.platforms.seed("plat-1", projectA, "discord", true)
	f.platforms.seed("plat-2", projectA, "telegram", true)
	f.platforms.seed("plat-off", projectA, "telegram", false)
	f.platforms.seed("plat-b", projectB, "discord", true)

	resolver := NewReactionResolver(f.reactions, &fakeAliasStore{})
	f.svc = NewMessageService(f.messages, f.platforms, resolver, f.publisher)
	f.svc.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func (f *messageFixture) addReceived(id string) {
	m := msg(id)
	m.ProjectID = projectA
	m.RawData = json.RawMessage(`{"provider":"payload"}`)
	f.messages.received = append(f.messages.received, m)
}

func TestMessageList_ReactionsAndRawAreOptIn(t *testing.T) {
	f := newMessageFixture()
	f.addReceived("m1")
	f.addReceived("m2")
	f.reactions.events = []models.ReactionEvent{ev("m1", "A", "Alice", "👍", models.ReactionAdded, 1)}
	ctx := context.Background()

	plain, err := f.svc.List(ctx, userCtx(ownerID), projectA, ListMessagesInput{})
	require.NoError(t, err)
	require.Len(t, plain.Messages, 2)
	assert.Nil(t, plain.Messages[0].Reactions)
	assert.Nil(t, plain.Messages[0].RawData)
	assert.Equal(t, 0, f.reactions.calls, "reaction log untouched unless requested")

	full, err := f.svc.List(ctx, userCtx(ownerID), projectA, ListMessagesInput{IncludeReactions: true, IncludeRaw: true})
	require.NoError(t, err)
	require.Len(t, full.Messages, 2)
	assert.NotNil(t, full.Messages[0].RawData)
	assert.Len(t, full.Messages[0].Reactions.Users("👍"), 1)

	body, err := json.Marshal(full.Messages[1])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"reactions":{}`)
}

func TestMessageList_Paging(t *testing.T) {
	f := newMessageFixture()
	for _, id := range []string{"m1", "m2", "m3"} {
		f.addReceived(id)
	}

	page, err := f.svc.List(context.Background(), userCtx(ownerID), projectA, ListMessagesInput{Page: Page{Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.True(t, page.HasMore)

	page, err = f.svc.List(context.Background(), userCtx(ownerID), projectA, ListMessagesInput{Page: Page{Limit: 2, Offset: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)
}

func TestMessageList_PlatformFilterMustBeUUID(t *testing.T) {
	f := newMessageFixture()
	bad := "discord-main"
	_, err := f.svc.List(context.Background(), userCtx(ownerID), projectA, ListMessagesInput{PlatformID: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMessageGet(t *testing.T) {
	f := newMessageFixture()
	f.addReceived("m1")

	view, err := f.svc.Get(context.Background(), userCtx(ownerID), projectA, "row-m1", true, false)
	require.NoError(t, err)
	assert.NotNil(t, view.Reactions)
	assert.Nil(t, view.RawData)

	_, err = f.svc.Get(context.Background(), userCtx(ownerID), projectA, "row-missing", false, false)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageSend_PersistsAndPublishesPerTarget(t *testing.T) {
	f := newMessageFixture()

	job, err := f.svc.Send(context.Background(), keyCtx(projectA, "messages:write"), projectA, SendMessageInput{
		Targets: []MessageTarget{
			{PlatformID: "plat-1", Type: "channel", ID: "chan-1"},
			{PlatformID: "plat-2", Type: "user", ID: "user-9"},
		},
		Content: json.RawMessage(`{"text":"hello"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, models.SentStatusQueued, job.Status)
	assert.Equal(t, 2, job.Targets)
	require.Len(t, f.messages.sent, 2)
	require.Len(t, f.publisher.jobs, 2)

	for _, row := range f.messages.sent {
		assert.Equal(t, job.JobID, row.JobID)
		assert.Equal(t, models.SentStatusQueued, row.Status)
		assert.Equal(t, queue.ActionSend, row.Action)
		require.NotNil(t, row.MessageText)
		assert.Equal(t, "hello", *row.MessageText)
	}
	require.NotNil(t, f.messages.sent[1].TargetUserID)
	assert.Equal(t, "user-9", *f.messages.sent[1].TargetUserID)
	assert.Equal(t, "telegram", f.publisher.jobs[1].Platform)
	assert.JSONEq(t, `{"platform_id":"plat-1","type":"channel","id":"chan-1"}`,
		string(mustField(t, f.publisher.jobs[0].Payload, "target")))
}

func mustField(t *testing.T, raw json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[field]
}

func TestMessageSend_Validation(t *testing.T) {
	f := newMessageFixture()
	content := json.RawMessage(`{"text":"hi"}`)

	tests := []struct {
		name string
		in   SendMessageInput
		want error
	}{
		{"no targets", SendMessageInput{Content: content}, ErrInvalidInput},
		{"no content", SendMessageInput{Targets: []MessageTarget{{PlatformID: "plat-1", ID: "c"}}}, ErrInvalidInput},
		{"content not object", SendMessageInput{Targets: []MessageTarget{{PlatformID: "plat-1", ID: "c"}}, Content: json.RawMessage(`"hi"`)}, ErrInvalidInput},
		{"bad target type", SendMessageInput{Targets: []MessageTarget{{PlatformID: "plat-1", Type: "broadcast", ID: "c"}}, Content: content}, ErrInvalidInput},
		{"missing target id", SendMessageInput{Targets: []MessageTarget{{PlatformID: "plat-1"}}, Content: content}, ErrInvalidInput},
		{"foreign platform", SendMessageInput{Targets: []MessageTarget{{PlatformID: "plat-b", ID: "c"}}, Content: content}, ErrPlatformNotFound},
		{"inactive platform", SendMessageInput{Targets: []MessageTarget{{PlatformID: "plat-off", ID: "c"}}, Content: content}, ErrPlatformInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), userCtx(ownerID), projectA, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.messages.sent, "rejected sends persist nothing")
	assert.Empty(t, f.publisher.jobs)
}

func TestMessageSend_TooManyTargets(t *testing.T) {
	f := newMessageFixture()
	targets := make([]MessageTarget, MaxSendTargets+1)
	for i := range targets {
		targets[i] = MessageTarget{PlatformID: "plat-1", ID: "c"}
	}

	_, err := f.svc.Send(context.Background(), userCtx(ownerID), projectA, SendMessageInput{
		Targets: targets,
		Content: json.RawMessage(`{"text":"hi"}`),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMessageSend_PublishFailureMarksJobFailed(t *testing.T) {
	f := newMessageFixture()
	f.publisher.err = queue.ErrClosed

	_, err := f.svc.Send(context.Background(), userCtx(ownerID), projectA, SendMessageInput{
		Targets: []MessageTarget{{PlatformID: "plat-1", ID: "c"}},
		Content: json.RawMessage(`{"text":"hi"}`),
	})
	require.ErrorIs(t, err, queue.ErrClosed)
	require.Len(t, f.messages.sent, 1)
	assert.Equal(t, models.SentStatusFailed, f.messages.sent[0].Status)
	require.NotNil(t, f.messages.sent[0].ErrorMessage)
}

func TestMessageSend_PartialPublishFailureKeepsPublishedRowsQueued(t *testing.T) {
	f := newMessageFixture()
	f.publisher.err = queue.ErrClosed
	f.publisher.failFrom = 1

	_, err := f.svc.Send(context.Background(), userCtx(ownerID), projectA, SendMessageInput{
		Targets: []MessageTarget{
			{PlatformID: "plat-1", ID: "c1"},
			{PlatformID: "plat-2", ID: "c2"},
			{PlatformID: "plat-1", ID: "c3"},
		},
		Content: json.RawMessage(`{"text":"hi"}`),
	})
	require.ErrorIs(t, err, queue.ErrClosed)
	require.Len(t, f.publisher.jobs, 1)
	require.Len(t, f.messages.sent, 3)

	assert.Equal(t, models.SentStatusQueued, f.messages.sent[0].Status, "published row keeps its queued state")
	assert.Nil(t, f.messages.sent[0].ErrorMessage)
	for _, row := range f.messages.sent[1:] {
		assert.Equal(t, models.SentStatusFailed, row.Status, row.TargetChatID)
		require.NotNil(t, row.ErrorMessage)
	}
}

func TestMessageSend_PersistFailurePublishesNothing(t *testing.T) {
	f := newMessageFixture()
	f.messages.err = errors.New("insert failed")

	_, err := f.svc.Send(context.Background(), userCtx(ownerID), projectA, SendMessageInput{
		Targets: []MessageTarget{{PlatformID: "plat-1", ID: "c1"}, {PlatformID: "plat-2", ID: "c2"}},
		Content: json.RawMessage(`{"text":"hi"}`),
	})
	require.Error(t, err)
	assert.Empty(t, f.messages.sent)
	assert.Empty(t, f.publisher.jobs)
}

func TestMessageSend_WithoutBrokerStaysPending(t *testing.T) {
	f := newMessageFixture()
	f.svc.publisher = nil

	job, err := f.svc.Send(context.Background(), userCtx(ownerID), projectA, SendMessageInput{
		Targets: []MessageTarget{{PlatformID: "plat-1", ID: "c"}},
		Content: json.RawMessage(`{"text":"hi"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SentStatusPending, job.Status)
	assert.Equal(t, models.SentStatusPending, f.messages.sent[0].Status)
}

func TestMessageActions(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	ac := userCtx(ownerID)
	in := MessageActionInput{PlatformID: "plat-1", ChatID: "chan-1", MessageID: "m1", Emoji: "👍"}

	_, err := f.svc.React(ctx, ac, projectA, in)
	require.NoError(t, err)
	_, err = f.svc.Unreact(ctx, ac, projectA, in)
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, ac, projectA, MessageActionInput{PlatformID: "plat-1", ChatID: "chan-1", MessageID: "m1"})
	require.NoError(t, err)

	require.Len(t, f.publisher.jobs, 3)
	assert.Equal(t, queue.ActionReact, f.publisher.jobs[0].Action)
	assert.Equal(t, queue.ActionUnreact, f.publisher.jobs[1].Action)
	assert.Equal(t, queue.ActionDelete, f.publisher.jobs[2].Action)

	_, err = f.svc.React(ctx, ac, projectA, MessageActionInput{PlatformID: "plat-1", ChatID: "c", MessageID: "m"})
	assert.ErrorIs(t, err, ErrInvalidInput, "emoji required")
	_, err = f.svc.Delete(ctx, ac, projectA, MessageActionInput{PlatformID: "plat-1", ChatID: "c"})
	assert.ErrorIs(t, err, ErrInvalidInput, "message id required")
}

func TestMessageStatus(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	ac := userCtx(ownerID)

	job, err := f.svc.Send(ctx, ac, projectA, SendMessageInput{
		Targets: []MessageTarget{{PlatformID: "plat-1", ID: "a"}, {PlatformID: "plat-1", ID: "b"}},
		Content: json.RawMessage(`{"text":"hi"}`),
	})
	require.NoError(t, err)

	status, err := f.svc.Status(ctx, ac, projectA, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.SentStatusQueued, status.Status)
	assert.Len(t, status.Targets, 2)

	_, err = f.svc.Status(ctx, ac, projectB, job.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestAggregateStatus(t *testing.T) {
	rows := func(statuses ...string) []models.SentMessage {
		out := make([]models.SentMessage, len(statuses))
		for i, s := range statuses {
			out[i].Status = s
		}
		return out
	}
	assert.Equal(t, "sent", aggregateStatus(rows("sent", "sent")))
	assert.Equal(t, "queued", aggregateStatus(rows("sent", "queued")))
	assert.Equal(t, "pending", aggregateStatus(rows("queued", "pending", "sent")))
	assert.Equal(t, "failed", aggregateStatus(rows("sent", "failed", "pending")))
}

func TestMessageListSent_InvalidStatus(t *testing.T) {
	f := newMessageFixture()
	bad := "delivered"
	_, err := f.svc.ListSent(context.Background(), userCtx(ownerID), projectA, &bad, Page{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMessageCleanup(t *testing.T) {
	f := newMessageFixture()

	n, err := f.svc.Cleanup(context.Background(), userCtx(ownerID), projectA, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, projectA, f.messages.purgedProject)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), f.messages.purgedCutoff)

	_, err = f.svc.Cleanup(context.Background(), userCtx(ownerID), projectA, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Cleanup(context.Background(), userCtx(ownerID), "", 30)
	assert.ErrorIs(t, err, ErrInvalidInput, "an empty project must never purge every tenant")
}
