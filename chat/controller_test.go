package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/sidekick/chat/gateway"
	"github.com/hrygo/sidekick/store"
)

type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      map[string][]*store.Message
	appendErr     error
	generation    *store.GenerationSetting
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]*store.Message),
	}
}

func (f *fakeStore) addConversation(uid string, titleSource store.TitleSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[uid] = &store.Conversation{
		UID:         uid,
		Title:       store.SentinelTitle,
		TitleSource: titleSource,
	}
}

func (f *fakeStore) GetConversation(_ context.Context, uid string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversations[uid], nil
}

func (f *fakeStore) AppendMessage(_ context.Context, conversationUID string, role store.Role, content string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	m := &store.Message{
		UID:             fmt.Sprintf("msg-%d", len(f.messages[conversationUID])+1),
		ConversationUID: conversationUID,
		Role:            role,
		Content:         content,
		CreatedTs:       time.Now().UnixMilli(),
	}
	f.messages[conversationUID] = append(f.messages[conversationUID], m)
	return m, nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationUID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]*store.Message, len(f.messages[conversationUID]))
	copy(list, f.messages[conversationUID])
	return list, nil
}

func (f *fakeStore) GetGenerationSetting(_ context.Context) (*store.GenerationSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generation != nil {
		return f.generation, nil
	}
	return store.DefaultGenerationSetting(), nil
}

func (f *fakeStore) messageCount(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[uid])
}

func (f *fakeStore) lastMessage(uid string) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.messages[uid]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

type fakeStreamer struct {
	mu       sync.Mutex
	calls    int
	requests []*gateway.CompletionRequest
	open     func(ctx context.Context) (io.ReadCloser, error)
}

func (f *fakeStreamer) StreamCompletion(ctx context.Context, request *gateway.CompletionRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	return f.open(ctx)
}

func (f *fakeStreamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sseBody(deltas ...string) io.ReadCloser {
	var b strings.Builder
	for _, d := range deltas {
		fmt.Fprintf(&b, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", d)
	}
	b.WriteString("data: [DONE]\n")
	return io.NopCloser(strings.NewReader(b.String()))
}

// eventRecorder captures bus events in publication order.
type eventRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *eventRecorder) listen(_ context.Context, event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(eventType EventType) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestController(st *fakeStore, streamer *fakeStreamer) (*Controller, *eventRecorder) {
	controller := NewController(ControllerConfig{
		Store:    st,
		Streamer: streamer,
	})
	recorder := &eventRecorder{}
	controller.Bus().SubscribeAll(recorder.listen)
	return controller, recorder
}

func TestSubmitEmptyInputIsNoop(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("unused"), nil }}
	controller, _ := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "   \n\t", ""))
	assert.Equal(t, 0, st.messageCount("c1"))
	assert.Equal(t, 0, streamer.callCount())
	assert.Equal(t, StateIdle, controller.State())
}

func TestSubmitPersistsUserMessageBeforeUpstream(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)

	var countAtCall int
	streamer := &fakeStreamer{}
	streamer.open = func(_ context.Context) (io.ReadCloser, error) {
		countAtCall = st.messageCount("c1")
		return sseBody("ok"), nil
	}
	controller, _ := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "hello", ""))
	assert.Equal(t, 1, countAtCall, "user message must be persisted before the upstream call")
}

func TestSubmitStreamsDeltasAndPersistsResponse(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("Hi", " there"), nil }}
	controller, recorder := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "Say hi", ""))

	deltas := recorder.ofType(EventStreamDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, "Hi", deltas[0].Delta)
	assert.Equal(t, " there", deltas[1].Delta)

	completed := recorder.ofType(EventTurnCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "Hi there", completed[0].Content)

	require.Equal(t, 2, st.messageCount("c1"))
	last := st.lastMessage("c1")
	assert.Equal(t, store.RoleAssistant, last.Role)
	assert.Equal(t, "Hi there", last.Content)
	assert.Equal(t, StateIdle, controller.State())
}

func TestSubmitIncludesSystemPromptAndHistory(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("ok"), nil }}
	controller, _ := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "question", ""))

	require.Len(t, streamer.requests, 1)
	messages := streamer.requests[0].Messages
	require.Len(t, messages, 2)
	assert.Equal(t, string(store.RoleSystem), messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, messages[0].Content)
	assert.Equal(t, string(store.RoleUser), messages[1].Role)
	assert.Equal(t, "question", messages[1].Content)
}

func TestSubmitSelectsPromptPersona(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("ok"), nil }}
	controller, _ := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "write a loop", "Code"))

	require.Len(t, streamer.requests, 1)
	messages := streamer.requests[0].Messages
	require.NotEmpty(t, messages)
	assert.Equal(t, SystemPrompts["Code"], messages[0].Content)
}

func TestSubmitAppliesGenerationSettings(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	st.generation = &store.GenerationSetting{
		Model:       "tuned-model",
		Temperature: 0.2,
		MaxTokens:   64,
	}
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("ok"), nil }}
	controller, _ := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "hello", ""))

	require.Len(t, streamer.requests, 1)
	request := streamer.requests[0]
	assert.Equal(t, "tuned-model", request.Model)
	assert.Equal(t, float32(0.2), request.Temperature)
	assert.Equal(t, 64, request.MaxTokens)
}

func TestSubmitUsesDefaultGenerationSettings(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("ok"), nil }}
	controller, _ := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "hello", ""))

	require.Len(t, streamer.requests, 1)
	request := streamer.requests[0]
	assert.Empty(t, request.Model, "empty model defers to the gateway default")
	assert.Equal(t, float32(0.7), request.Temperature)
	assert.Equal(t, 1000, request.MaxTokens)
}

func TestSubmitUpstreamFailure(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	upstreamErr := &gateway.StatusError{StatusCode: 500, Body: "upstream down"}
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return nil, upstreamErr }}
	controller, recorder := newTestController(st, streamer)

	err := controller.Submit(context.Background(), "c1", "hello", "")
	require.Error(t, err)

	var statusErr *gateway.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)

	failed := recorder.ofType(EventTurnFailed)
	require.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0].Err, "upstream down")

	// The user message survives a failed turn.
	assert.Equal(t, 1, st.messageCount("c1"))
	assert.Equal(t, store.RoleUser, st.lastMessage("c1").Role)
	assert.Equal(t, StateIdle, controller.State())
}

// errorBody delivers one chunk, then fails with a transport error.
type errorBody struct {
	first string
	sent  bool
	err   error
}

func (b *errorBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.first), nil
	}
	return 0, b.err
}

func (b *errorBody) Close() error { return nil }

func TestSubmitMidStreamTransportError(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)

	body := &errorBody{
		first: "data: {\"choices\":[{\"delta\":{\"content\":\"Par\"}}]}\n",
		err:   errors.New("connection reset by peer"),
	}
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return body, nil }}
	controller, recorder := newTestController(st, streamer)

	err := controller.Submit(context.Background(), "c1", "long question", "")
	require.ErrorContains(t, err, "connection reset by peer")

	// A transport failure is a failed turn, not a cancelled one.
	failed := recorder.ofType(EventTurnFailed)
	require.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0].Err, "connection reset by peer")
	assert.Empty(t, recorder.ofType(EventTurnCancelled))
	assert.Empty(t, recorder.ofType(EventTurnCompleted))

	// The partial response is discarded; only the user message remains.
	require.Equal(t, 1, st.messageCount("c1"))
	assert.Equal(t, store.RoleUser, st.lastMessage("c1").Role)
	assert.Equal(t, StateIdle, controller.State())
}

// blockingBody delivers one chunk, then blocks until released.
type blockingBody struct {
	first   string
	sent    bool
	unblock chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.first), nil
	}
	<-b.unblock
	return 0, errors.New("connection reset")
}

func (b *blockingBody) Close() error { return nil }

func TestCancelDiscardsPartialResponse(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)

	body := &blockingBody{
		first:   "data: {\"choices\":[{\"delta\":{\"content\":\"Par\"}}]}\n",
		unblock: make(chan struct{}),
	}
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return body, nil }}
	controller, recorder := newTestController(st, streamer)

	firstDelta := make(chan struct{})
	var once sync.Once
	controller.Bus().Subscribe(EventStreamDelta, func(_ context.Context, _ *Event) {
		once.Do(func() { close(firstDelta) })
	})

	result := make(chan error, 1)
	go func() {
		result <- controller.Submit(context.Background(), "c1", "long question", "")
	}()

	select {
	case <-firstDelta:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	controller.Cancel()
	close(body.unblock)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for turn teardown")
	}

	require.Len(t, recorder.ofType(EventTurnCancelled), 1)
	assert.Empty(t, recorder.ofType(EventTurnCompleted))

	// Partial response is discarded; only the user message remains.
	require.Equal(t, 1, st.messageCount("c1"))
	assert.Equal(t, store.RoleUser, st.lastMessage("c1").Role)
	assert.Equal(t, StateIdle, controller.State())
}

// ctxBody delivers one chunk, then blocks until its request context is
// cancelled, like a real streaming response body.
type ctxBody struct {
	ctx   context.Context
	first string
	sent  bool
}

func (b *ctxBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.first), nil
	}
	<-b.ctx.Done()
	return 0, errors.New("connection reset")
}

func (b *ctxBody) Close() error { return nil }

func TestSecondSubmitReplacesInFlightTurn(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)

	streamer := &fakeStreamer{}
	streamer.open = func(ctx context.Context) (io.ReadCloser, error) {
		if streamer.callCount() == 1 {
			return &ctxBody{ctx: ctx, first: "data: {\"choices\":[{\"delta\":{\"content\":\"Par\"}}]}\n"}, nil
		}
		return sseBody("Replacement"), nil
	}
	controller, recorder := newTestController(st, streamer)

	firstDelta := make(chan struct{})
	var once sync.Once
	controller.Bus().Subscribe(EventStreamDelta, func(_ context.Context, _ *Event) {
		once.Do(func() { close(firstDelta) })
	})

	first := make(chan error, 1)
	go func() {
		first <- controller.Submit(context.Background(), "c1", "first question", "")
	}()

	select {
	case <-firstDelta:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	// The second submit must cancel the in-flight turn on its own; nothing
	// else releases the first stream.
	second := make(chan error, 1)
	go func() {
		second <- controller.Submit(context.Background(), "c1", "second question", "")
	}()

	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second submit did not replace the in-flight turn")
	}
	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first turn teardown")
	}

	require.Len(t, recorder.ofType(EventTurnCancelled), 1)
	completed := recorder.ofType(EventTurnCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "Replacement", completed[0].Content)

	// Both user messages persisted; only the second turn's response survives.
	require.Equal(t, 3, st.messageCount("c1"))
	assert.Equal(t, "Replacement", st.lastMessage("c1").Content)
	assert.Equal(t, StateIdle, controller.State())
}

type fakeTitler struct {
	called chan string
}

func (f *fakeTitler) Retitle(_ context.Context, conversationUID string) (string, error) {
	f.called <- conversationUID
	return "Generated Title", nil
}

func TestAutoTitleRunsOnlyForDefaultTitle(t *testing.T) {
	tests := []struct {
		name        string
		titleSource store.TitleSource
		wantRetitle bool
	}{
		{"default title gets retitled", store.TitleSourceDefault, true},
		{"user title is left alone", store.TitleSourceUser, false},
		{"auto title is not regenerated", store.TitleSourceAuto, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.addConversation("c1", tt.titleSource)
			streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("answer"), nil }}
			titler := &fakeTitler{called: make(chan string, 1)}

			controller := NewController(ControllerConfig{
				Store:    st,
				Streamer: streamer,
				Titler:   titler,
			})

			require.NoError(t, controller.Submit(context.Background(), "c1", "hello", ""))

			if tt.wantRetitle {
				select {
				case uid := <-titler.called:
					assert.Equal(t, "c1", uid)
				case <-time.After(5 * time.Second):
					t.Fatal("timed out waiting for retitle")
				}
			} else {
				select {
				case <-titler.called:
					t.Fatal("retitle must not run")
				case <-time.After(100 * time.Millisecond):
				}
			}
		})
	}
}

func TestBuildRequestCapsHistory(t *testing.T) {
	st := newFakeStore()
	controller, _ := newTestController(st, &fakeStreamer{})

	history := make([]*store.Message, 0, 100)
	for i := 0; i < 100; i++ {
		history = append(history, &store.Message{
			Role:    store.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		})
	}

	request := controller.buildRequest(history, store.DefaultGenerationSetting(), "")
	require.Len(t, request.Messages, gateway.MaxMessages)
	assert.Equal(t, string(store.RoleSystem), request.Messages[0].Role)
	// The most recent history wins.
	assert.Equal(t, "message 99", request.Messages[len(request.Messages)-1].Content)
	assert.Equal(t, "message 37", request.Messages[1].Content)
}

func TestSubmitWhitespaceOnlyResponseSkipsPersist(t *testing.T) {
	st := newFakeStore()
	st.addConversation("c1", store.TitleSourceDefault)
	streamer := &fakeStreamer{open: func(_ context.Context) (io.ReadCloser, error) { return sseBody("  ", "\n"), nil }}
	controller, recorder := newTestController(st, streamer)

	require.NoError(t, controller.Submit(context.Background(), "c1", "hello", ""))

	require.Len(t, recorder.ofType(EventTurnCompleted), 1)
	assert.Equal(t, 1, st.messageCount("c1"))
}
