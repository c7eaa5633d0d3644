package ai

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) client(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) GenerateStream(ctx context.Context, model string, prompt string) (TokenStream, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	seq := client.Models.GenerateContentStream(
		streamCtx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	st := &chanStream{
		ch:     make(chan fragment),
		cancel: cancel,
	}
	go func() {
		defer close(st.ch)
		for resp, err := range seq {
			if err != nil {
				st.emit(streamCtx, fragment{err: err})
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !st.emit(streamCtx, fragment{text: text}) {
				return
			}
		}
	}()
	return st, nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	var config *genai.EmbedContentConfig
	if taskType != "" {
		config = &genai.EmbedContentConfig{
			TaskType: taskType,
		}
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

type fragment struct {
	text string
	err  error
}

// chanStream bridges a producer goroutine to the TokenStream contract.
type chanStream struct {
	ch     chan fragment
	cancel context.CancelFunc
}

func (s *chanStream) emit(ctx context.Context, f fragment) bool {
	select {
	case s.ch <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *chanStream) Recv() (string, error) {
	f, ok := <-s.ch
	if !ok {
		return "", io.EOF
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (s *chanStream) Close() {
	s.cancel()
	for range s.ch {
	}
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{
		apiKey: strings.TrimSpace(cfg.APIKey),
	}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
