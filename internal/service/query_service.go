package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/ai"
	"github.com/starfire-ai/kbase/internal/model"
	"github.com/starfire-ai/kbase/internal/session"
)

// Validation errors carry the exact message sent back over the channel.
var (
	ErrQueryRequired   = errors.New("Query is required")
	ErrSessionRequired = errors.New("SessionId is required")
)

// Frames written back over the client channel.
type ChunkFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type DoneFrame struct {
	Type    string                    `json:"type"`
	Sources []model.RetrievedDocument `json:"sources"`
}

type CancelledFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}

// FrameFunc delivers one frame to the client. Implementations serialize
// concurrent writes themselves.
type FrameFunc func(frame interface{}) error

type HistoryStore interface {
	ListRecent(ctx context.Context, sessionID string, limit uint) ([]model.ConversationTurn, error)
	Append(ctx context.Context, turn *model.ConversationTurn) error
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]model.RetrievedDocument, error)
}

type answerGenerator interface {
	RewriteQuery(ctx context.Context, history string, query string) (string, error)
	AnswerStream(ctx context.Context, history string, contextText string, query string) (ai.TokenStream, error)
}

type QueryConfig struct {
	TopK            int
	MaxContextChars int
	MaxHistoryChars int
	HistoryTurns    int
}

type QueryService struct {
	history   HistoryStore
	retriever Retriever
	generator answerGenerator
	cfg       QueryConfig
}

func NewQueryService(history HistoryStore, retriever Retriever, generator answerGenerator, cfg QueryConfig) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 12000
	}
	if cfg.MaxHistoryChars <= 0 {
		cfg.MaxHistoryChars = 3000
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 5
	}
	return &QueryService{
		history:   history,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
	}
}

// HandleQuery runs the full retrieval and generation pipeline for one query,
// streaming chunks through emit. ctx must be the context returned by st.Reset;
// the caller resets the state before scheduling so a cancel is never lost
// between queries. A cancelled query stops without emitting a done frame and
// without persisting the exchange; the cancellation acknowledgement is the
// control path's responsibility.
func (s *QueryService) HandleQuery(ctx context.Context, st *session.State, sessionID string, query string, emit FrameFunc) error {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))
	defer st.Release()

	if st.Cancelled() {
		logger.Info("query cancelled before start")
		return nil
	}
	turns, err := s.history.ListRecent(ctx, sessionID, uint(s.cfg.HistoryTurns))
	if err != nil {
		if st.Cancelled() {
			return nil
		}
		logger.Error("failed to load conversation history", zap.Error(err))
		return err
	}
	historyText := truncate(formatTurns(turns), s.cfg.MaxHistoryChars)

	searchQuery, err := s.generator.RewriteQuery(ctx, historyText, query)
	if err != nil {
		if st.Cancelled() {
			return nil
		}
		logger.Error("failed to rewrite query", zap.Error(err))
		return err
	}

	docs, err := s.retriever.Retrieve(ctx, searchQuery)
	if err != nil {
		if st.Cancelled() {
			return nil
		}
		logger.Error("retrieval failed", zap.Error(err))
		return err
	}
	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
	}
	contextText := truncate(strings.Join(contents, "\n\n"), s.cfg.MaxContextChars)

	stream, err := s.generator.AnswerStream(ctx, historyText, contextText, query)
	if err != nil {
		if st.Cancelled() {
			return nil
		}
		logger.Error("failed to open answer stream", zap.Error(err))
		return err
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		if st.Cancelled() {
			logger.Info("query cancelled mid-stream")
			return nil
		}
		token, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if st.Cancelled() {
				return nil
			}
			logger.Error("stream read failed", zap.Error(err))
			return err
		}
		if token == "" {
			continue
		}
		answer.WriteString(token)
		if err := emit(&ChunkFrame{Type: "chunk", Data: token}); err != nil {
			return err
		}
	}
	if st.Cancelled() {
		return nil
	}

	// Persist the exchange as a pair: the user turn first, then the answer.
	// The detached context means a late cancel cannot split the pair.
	pctx := context.WithoutCancel(ctx)
	now := time.Now().UnixMilli()
	if err := s.history.Append(pctx, &model.ConversationTurn{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   query,
		Ctime:     now,
	}); err != nil {
		logger.Error("failed to save user turn", zap.Error(err))
		return err
	}
	if err := s.history.Append(pctx, &model.ConversationTurn{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   answer.String(),
		Ctime:     now,
	}); err != nil {
		logger.Error("failed to save assistant turn", zap.Error(err))
		return err
	}

	sources := docs
	if sources == nil {
		sources = []model.RetrievedDocument{}
	}
	return emit(&DoneFrame{Type: "done", Sources: sources})
}

// Validate rejects malformed query requests before the pipeline starts.
func (s *QueryService) Validate(sessionID string, query string) error {
	if query == "" {
		return ErrQueryRequired
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	return nil
}

func formatTurns(turns []model.ConversationTurn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, turn.Role+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "...[truncated]"
}
