package model

const (
	ChartTypeBar     = "bar"
	ChartTypeLine    = "line"
	ChartTypePie     = "pie"
	ChartTypeRadar   = "radar"
	ChartTypeScatter = "scatter"
)

type ChartDataset struct {
	Label           string        `json:"label,omitempty"`
	Data            []interface{} `json:"data"`
	BackgroundColor interface{}   `json:"backgroundColor,omitempty"`
	BorderColor     string        `json:"borderColor,omitempty"`
	Fill            bool          `json:"fill,omitempty"`
}

type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

type Visualization struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Insights        []string  `json:"insights"`
	ChartType       string    `json:"chartType"`
	ChartData       ChartData `json:"chartData"`
	Recommendations []string  `json:"recommendations"`
}

type VisualizationMetadata struct {
	DocumentsAnalyzed int   `json:"documentsAnalyzed"`
	FilesReferenced   int   `json:"filesReferenced"`
	ProcessingTime    int64 `json:"processingTime"`
}

type VisualizationSet struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Summary        string                `json:"summary"`
	CreatedAt      string                `json:"createdAt"`
	Visualizations []Visualization       `json:"visualizations"`
	Metadata       VisualizationMetadata `json:"metadata"`
}

// VisualizationSetSummary is the list projection: everything but the chart
// payloads, plus the leading chart type so clients can render an icon.
type VisualizationSetSummary struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Summary        string                `json:"summary"`
	CreatedAt      string                `json:"createdAt"`
	Metadata       VisualizationMetadata `json:"metadata"`
	FirstChartType string                `json:"firstChartType,omitempty"`
}
