package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starfire-ai/kbase/internal/model"
)

type ManagerConfig struct {
	GenerateModel string
	EmbedModel    string
	Timeout       int
	MaxInputChars int
}

// Manager wraps a provider with the prompt surface the services need. Model
// names and limits are resolved here so callers never see raw provider calls.
type Manager struct {
	provider IProvider
	cfg      ManagerConfig
}

func NewManager(provider IProvider, cfg ManagerConfig) *Manager {
	return &Manager{
		provider: provider,
		cfg:      cfg,
	}
}

func (m *Manager) EmbeddingModelName() string {
	return m.cfg.EmbedModel
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.provider == nil {
		return nil, fmt.Errorf("ai provider not configured")
	}
	return m.provider.Embed(ctx, m.cfg.EmbedModel, text, taskType)
}

const answerSystemPrompt = `You are a healthcare commercial intelligence assistant for Starfire, an AI-native intelligence platform that democratizes data analytics for life sciences teams. Your role is to help users answer business-relevant questions based on their healthcare datasets.

When answering questions:
- Focus on business-relevant insights that help life sciences teams make informed decisions
- Provide actionable intelligence based on the available data
- Use clear, professional language appropriate for healthcare commercial teams
- When possible, highlight trends, patterns, or notable findings in the data
- If data is insufficient for a complete answer, clearly state what additional information would be helpful`

// RewriteQuery condenses the running conversation plus the latest question
// into a standalone retrieval query.
func (m *Manager) RewriteQuery(ctx context.Context, history string, query string) (string, error) {
	if strings.TrimSpace(history) == "" {
		return query, nil
	}
	prompt := fmt.Sprintf(`%s
user: %s

Given the above conversation, generate a search query to look up in order to get information relevant to the conversation. Output ONLY the search query.`, history, query)
	return m.generateText(ctx, prompt)
}

// AnswerStream opens a streaming generation for the final grounded answer.
// The caller owns the returned stream and must Close it.
func (m *Manager) AnswerStream(ctx context.Context, history string, contextText string, query string) (TokenStream, error) {
	if m.provider == nil {
		return nil, fmt.Errorf("ai provider not configured")
	}
	prompt := fmt.Sprintf(`%s

Previous conversation:
%s

Context from knowledge base:
%s

User question: %s`, answerSystemPrompt, history, contextText, query)
	return m.provider.GenerateStream(ctx, m.cfg.GenerateModel, m.clipPrompt(prompt))
}

// AnalyzeFile asks the model to classify an uploaded file for commercial
// relevance. A parse failure is returned to the caller, which falls back to
// deterministic classification.
func (m *Manager) AnalyzeFile(ctx context.Context, name string, contentType string, size int64) (*model.FileAnalysis, error) {
	prompt := fmt.Sprintf(`You are assisting in preparing commercial pharmaceutical data for downstream analysis at Starfire, an AI-native intelligence platform. Your role is to contextualize this document for pharmaceutical commercial teams who need actionable business intelligence.

File Information:
- Filename: %s
- File Type: %s
- File Size: %d bytes

Analysis Instructions:
1. Summarize the document's commercial relevance in 2-3 sentences, focusing on key points that matter to pharma commercial teams
2. Identify which commercial intelligence themes are present in this document
3. Extract business context that supports executive decision-making
4. Classify the data type based on its commercial application

Commercial Intelligence Themes to Identify:
- Market Access (payor coverage, formulary positioning, access barriers)
- HEOR (Health Economics & Outcomes Research, cost-effectiveness)
- Omnichannel Engagement (HCP interactions, digital touchpoints)
- Patient Journey (treatment pathways, patient flow analysis)
- Physician Profiling (prescriber behavior, targeting insights)
- Pricing/GTN (gross-to-net, pricing strategy, rebates)
- Contracting/Compliance (managed care contracts, regulatory compliance)
- Forecasting (demand planning, market projections)
- Competitive Intelligence (market share, competitor analysis)
- Brand Performance (launch metrics, sales performance)

Return a JSON response with this exact structure:
{
  "type": "Commercial document type (e.g., 'Market Access Analysis', 'Brand Performance Dashboard', 'Payor Coverage Report')",
  "summary": "Direct, confident 2-3 sentence description focusing on commercial relevance and business decisions this data supports. Start with strong action words like 'Enables', 'Supports', 'Provides', 'Analyzes' - never use uncertain language",
  "key_topics": ["3-5 commercial intelligence topics from the themes above that are most relevant"],
  "data_classification": "Commercial classification (e.g., 'Market Access Intelligence', 'Brand Performance Data', 'HEOR Evidence')"
}

IMPORTANT: Focus on commercial intelligence value and business impact. Each element should support downstream decision-making for pharmaceutical commercial teams. Output ONLY the JSON object.`, name, contentType, size)
	raw, err := m.generateText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	analysis := &model.FileAnalysis{}
	if err := parseJSONObject(raw, analysis); err != nil {
		return nil, err
	}
	if analysis.Type == "" || analysis.Summary == "" {
		return nil, fmt.Errorf("incomplete analysis response")
	}
	return analysis, nil
}

// GeneratedVisualizations is the model-produced portion of a visualization
// set, before ids and storage metadata are attached.
type GeneratedVisualizations struct {
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Summary        string                `json:"summary"`
	Visualizations []model.Visualization `json:"visualizations"`
}

func (m *Manager) GenerateVisualizations(ctx context.Context, documentContent string, metadataContent string) (*GeneratedVisualizations, error) {
	prompt := fmt.Sprintf(`You are a strategic commercial intelligence analyst for Starfire, helping pharmaceutical executives make data-driven decisions. Your task is to analyze commercial data and generate executive-ready visualizations that identify trends, anomalies, and strategic opportunities.

COMMERCIAL DATA ANALYZED:
%s

FILE METADATA:
%s

Based on the above commercial intelligence data, generate FOUR executive-level visualizations that provide actionable insights for pharmaceutical commercial leadership. Focus on business impact and strategic decision-making rather than technical analysis.

Each visualization should:
- Highlight key trends impacting brand performance
- Identify anomalies or deviations from expected metrics
- Surface strategic opportunities or risks
- Provide clear next-best-action recommendations
- Be suitable for C-suite presentations and decision-making

Your response must follow this exact JSON format:

{
  "title": "Generate a specific, descriptive title based on the actual data analyzed",
  "description": "Generate a specific description based on the actual data and insights found",
  "summary": "Executive summary of the key findings across all visualizations (2-3 sentences)",
  "visualizations": [
    {
      "id": "viz1",
      "title": "Clear, concise chart title",
      "description": "Brief description of what the visualization shows",
      "insights": ["Executive insight", "Strategic insight", "Commercial insight"],
      "chartType": "bar",
      "chartData": {
        "labels": ["Label1", "Label2"],
        "datasets": [{"label": "Dataset name", "data": [1, 2], "backgroundColor": ["#color1", "#color2"], "borderColor": "#bordercolor", "fill": true}]
      },
      "recommendations": ["Strategic action", "Tactical recommendation"]
    }
  ]
}

Use chartType "bar" for the first visualization, "line" for the second, "pie" for the third, and "radar" for the fourth.

IMPORTANT GUIDELINES:
1. Generate realistic commercial metrics based on pharmaceutical business context
2. Use executive-friendly language - avoid jargon, be concise and actionable
3. Each insight should highlight business implications (revenue, market share, competitive position)
4. Recommendations must be specific next-best-actions for commercial teams
5. Use professional color schemes suitable for C-suite presentations
6. Ensure JSON is valid and properly formatted
7. Surface anomalies, deviations from forecast, and strategic implications

Output ONLY the JSON object.`, documentContent, metadataContent)
	raw, err := m.generateText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	out := &GeneratedVisualizations{}
	if err := parseJSONObject(raw, out); err != nil {
		return nil, err
	}
	if out.Title == "" || len(out.Visualizations) == 0 {
		return nil, fmt.Errorf("incomplete visualization response")
	}
	return out, nil
}

// clipPrompt caps what gets sent to the provider at the configured input
// limit.
func (m *Manager) clipPrompt(prompt string) string {
	if m.cfg.MaxInputChars > 0 && len(prompt) > m.cfg.MaxInputChars {
		return prompt[:m.cfg.MaxInputChars]
	}
	return prompt
}

func (m *Manager) generateText(ctx context.Context, prompt string) (string, error) {
	if m.provider == nil {
		return "", fmt.Errorf("ai provider not configured")
	}
	prompt = m.clipPrompt(prompt)
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.provider.Generate(ctx, m.cfg.GenerateModel, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func parseJSONObject(output string, dst interface{}) error {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no json object in response")
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), dst); err != nil {
		return fmt.Errorf("parse ai response: %w", err)
	}
	return nil
}
