package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starfire-ai/kbase/internal/ai"
	"github.com/starfire-ai/kbase/internal/model"
	"github.com/starfire-ai/kbase/internal/session"
)

type fakeHistory struct {
	turns    []model.ConversationTurn
	appended []model.ConversationTurn
	appendEr error
}

func (f *fakeHistory) ListRecent(ctx context.Context, sessionID string, limit uint) ([]model.ConversationTurn, error) {
	return f.turns, nil
}

func (f *fakeHistory) Append(ctx context.Context, turn *model.ConversationTurn) error {
	if f.appendEr != nil {
		return f.appendEr
	}
	f.appended = append(f.appended, *turn)
	return nil
}

type fakeRetriever struct {
	docs []model.RetrievedDocument
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]model.RetrievedDocument, error) {
	return f.docs, f.err
}

type fakeStream struct {
	tokens []string
	idx    int
	onRecv func(i int)
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.idx >= len(s.tokens) {
		return "", io.EOF
	}
	if s.onRecv != nil {
		s.onRecv(s.idx)
	}
	tok := s.tokens[s.idx]
	s.idx++
	return tok, nil
}

func (s *fakeStream) Close() {
	s.closed = true
}

type fakeGenerator struct {
	stream      *fakeStream
	streamErr   error
	gotHistory  string
	gotContext  string
	rewriteOut  string
	rewriteErr  error
	gotRewrite  string
	rewriteSeen bool
}

func (f *fakeGenerator) RewriteQuery(ctx context.Context, history string, query string) (string, error) {
	f.rewriteSeen = true
	f.gotRewrite = history
	if f.rewriteErr != nil {
		return "", f.rewriteErr
	}
	if f.rewriteOut != "" {
		return f.rewriteOut, nil
	}
	return query, nil
}

func (f *fakeGenerator) AnswerStream(ctx context.Context, history string, contextText string, query string) (ai.TokenStream, error) {
	f.gotHistory = history
	f.gotContext = contextText
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

type frameCollector struct {
	frames []interface{}
}

func (f *frameCollector) emit(frame interface{}) error {
	f.frames = append(f.frames, frame)
	return nil
}

func TestHandleQuerySuccess(t *testing.T) {
	history := &fakeHistory{}
	retriever := &fakeRetriever{docs: []model.RetrievedDocument{
		{Content: "doc one", Metadata: map[string]interface{}{"title": "a"}},
		{Content: "doc two", Metadata: map[string]interface{}{"title": "b"}},
	}}
	gen := &fakeGenerator{stream: &fakeStream{tokens: []string{"Hel", "lo"}}}
	svc := NewQueryService(history, retriever, gen, QueryConfig{})
	collector := &frameCollector{}
	st := session.NewState()

	err := svc.HandleQuery(context.Background(), st, "s1", "what is up", collector.emit)
	require.NoError(t, err)

	require.Len(t, collector.frames, 3)
	chunk1, ok := collector.frames[0].(*ChunkFrame)
	require.True(t, ok)
	require.Equal(t, "chunk", chunk1.Type)
	require.Equal(t, "Hel", chunk1.Data)
	done, ok := collector.frames[2].(*DoneFrame)
	require.True(t, ok)
	require.Equal(t, "done", done.Type)
	require.Len(t, done.Sources, 2)

	require.Len(t, history.appended, 2)
	require.Equal(t, model.RoleUser, history.appended[0].Role)
	require.Equal(t, "what is up", history.appended[0].Content)
	require.Equal(t, model.RoleAssistant, history.appended[1].Role)
	require.Equal(t, "Hello", history.appended[1].Content)
	require.True(t, gen.stream.closed)
}

func TestHandleQueryCancelledMidStream(t *testing.T) {
	history := &fakeHistory{}
	retriever := &fakeRetriever{docs: []model.RetrievedDocument{{Content: "doc"}}}
	st := session.NewState()
	stream := &fakeStream{tokens: []string{"first", "second", "third"}}
	stream.onRecv = func(i int) {
		if i == 0 {
			st.Cancel()
		}
	}
	gen := &fakeGenerator{stream: stream}
	svc := NewQueryService(history, retriever, gen, QueryConfig{})
	collector := &frameCollector{}

	err := svc.HandleQuery(context.Background(), st, "s1", "question", collector.emit)
	require.NoError(t, err)

	// One chunk made it out before the flag was observed; neither a done
	// frame nor any history write follows a cancellation.
	require.Len(t, collector.frames, 1)
	_, ok := collector.frames[0].(*ChunkFrame)
	require.True(t, ok)
	require.Empty(t, history.appended)
	require.True(t, stream.closed)
}

func TestHandleQueryAfterResetClearsEarlierCancel(t *testing.T) {
	history := &fakeHistory{}
	retriever := &fakeRetriever{}
	gen := &fakeGenerator{stream: &fakeStream{tokens: []string{"ok"}}}
	svc := NewQueryService(history, retriever, gen, QueryConfig{})
	collector := &frameCollector{}
	st := session.NewState()
	st.Cancel()
	qctx := st.Reset(context.Background())

	err := svc.HandleQuery(qctx, st, "s1", "q", collector.emit)
	require.NoError(t, err)
	require.Len(t, history.appended, 2)

	done, ok := collector.frames[len(collector.frames)-1].(*DoneFrame)
	require.True(t, ok)
	require.NotNil(t, done.Sources)
	require.Empty(t, done.Sources)
}

func TestHandleQueryCancelAfterResetIsHonoured(t *testing.T) {
	history := &fakeHistory{}
	retriever := &fakeRetriever{docs: []model.RetrievedDocument{{Content: "doc"}}}
	gen := &fakeGenerator{stream: &fakeStream{tokens: []string{"never"}}}
	svc := NewQueryService(history, retriever, gen, QueryConfig{})
	collector := &frameCollector{}
	st := session.NewState()

	// A cancel landing between the reset and the pipeline start must stop
	// the query silently: no frames, no history writes.
	qctx := st.Reset(context.Background())
	st.Cancel()

	err := svc.HandleQuery(qctx, st, "s1", "q", collector.emit)
	require.NoError(t, err)
	require.Empty(t, collector.frames)
	require.Empty(t, history.appended)
	require.False(t, gen.rewriteSeen)
}

func TestHandleQueryRetrievalError(t *testing.T) {
	history := &fakeHistory{}
	retriever := &fakeRetriever{err: errors.New("index offline")}
	gen := &fakeGenerator{}
	svc := NewQueryService(history, retriever, gen, QueryConfig{})
	collector := &frameCollector{}

	err := svc.HandleQuery(context.Background(), session.NewState(), "s1", "q", collector.emit)
	require.Error(t, err)
	require.Empty(t, collector.frames)
	require.Empty(t, history.appended)
}

func TestHandleQueryTruncatesContextAndHistory(t *testing.T) {
	longDoc := strings.Repeat("x", 13000)
	history := &fakeHistory{turns: []model.ConversationTurn{
		{Role: model.RoleUser, Content: strings.Repeat("h", 4000)},
	}}
	retriever := &fakeRetriever{docs: []model.RetrievedDocument{{Content: longDoc}}}
	gen := &fakeGenerator{stream: &fakeStream{tokens: []string{"a"}}}
	svc := NewQueryService(history, retriever, gen, QueryConfig{})
	collector := &frameCollector{}

	err := svc.HandleQuery(context.Background(), session.NewState(), "s1", "q", collector.emit)
	require.NoError(t, err)

	require.Len(t, gen.gotContext, 12000+len("...[truncated]"))
	require.True(t, strings.HasSuffix(gen.gotContext, "...[truncated]"))
	require.Len(t, gen.gotHistory, 3000+len("...[truncated]"))
	require.True(t, strings.HasSuffix(gen.gotHistory, "...[truncated]"))
}

func TestValidate(t *testing.T) {
	svc := NewQueryService(&fakeHistory{}, &fakeRetriever{}, &fakeGenerator{}, QueryConfig{})
	require.NoError(t, svc.Validate("s1", "what is up"))
	require.ErrorIs(t, svc.Validate("s1", ""), ErrQueryRequired)
	require.ErrorIs(t, svc.Validate("", "q"), ErrSessionRequired)
	require.Equal(t, "Query is required", ErrQueryRequired.Error())
	require.Equal(t, "SessionId is required", ErrSessionRequired.Error())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{name: "under limit", text: "short", limit: 10, want: "short"},
		{name: "at limit", text: "exact", limit: 5, want: "exact"},
		{name: "over limit", text: "abcdef", limit: 3, want: "abc...[truncated]"},
		{name: "zero limit passes through", text: "anything", limit: 0, want: "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, truncate(tt.text, tt.limit))
		})
	}
}

func TestFormatTurns(t *testing.T) {
	turns := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	}
	require.Equal(t, "user: hi\nassistant: hello", formatTurns(turns))
	require.Equal(t, "", formatTurns(nil))
}
