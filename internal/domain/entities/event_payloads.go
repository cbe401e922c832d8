package entities

// SearchPayload describes a completed search.
type SearchPayload struct {
	Query          string  `json:"query" validate:"required"`
	ResultsCount   int     `json:"results_count" validate:"gte=0"`
	ResponseTimeMs float64 `json:"response_time_ms" validate:"gte=0"`
	HasResults     bool    `json:"has_results"`
	SearchType     string  `json:"search_type,omitempty" validate:"omitempty,oneof=basic advanced"`
}

func (p *SearchPayload) Kind() EventKind { return EventKindSearch }

func (p *SearchPayload) Attributes() map[string]any {
	attrs := map[string]any{
		"query":            p.Query,
		"results_count":    p.ResultsCount,
		"response_time_ms": p.ResponseTimeMs,
		"has_results":      p.HasResults,
	}
	if p.SearchType != "" {
		attrs["search_type"] = p.SearchType
	}
	return attrs
}

// GenerationPayload describes one AI content generation.
type GenerationPayload struct {
	SKU              string  `json:"sku" validate:"required"`
	ContentType      string  `json:"content_type" validate:"required"`
	QualityScore     float64 `json:"quality_score" validate:"gte=0"`
	GenerationTimeMs float64 `json:"generation_time_ms" validate:"gte=0"`
	AIModel          string  `json:"ai_model"`
	PromptTokens     int     `json:"prompt_tokens,omitempty" validate:"gte=0"`
	CompletionTokens int     `json:"completion_tokens,omitempty" validate:"gte=0"`
}

func (p *GenerationPayload) Kind() EventKind { return EventKindGeneration }

func (p *GenerationPayload) Attributes() map[string]any {
	attrs := map[string]any{
		"sku":                p.SKU,
		"content_type":       p.ContentType,
		"quality_score":      p.QualityScore,
		"generation_time_ms": p.GenerationTimeMs,
		"ai_model":           p.AIModel,
	}
	if p.PromptTokens > 0 {
		attrs["prompt_tokens"] = p.PromptTokens
	}
	if p.CompletionTokens > 0 {
		attrs["completion_tokens"] = p.CompletionTokens
	}
	return attrs
}

// ReviewAction is what a reviewer did with generated content.
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
	ReviewActionEdit    ReviewAction = "edit"
)

// ReviewPayload describes a human review of generated content.
type ReviewPayload struct {
	ContentID     string       `json:"content_id" validate:"required"`
	Action        ReviewAction `json:"action" validate:"required,oneof=approve reject edit"`
	ReviewTimeMs  float64      `json:"review_time_ms,omitempty" validate:"gte=0"`
	ChangesMade   bool         `json:"changes_made"`
	QualityRating float64      `json:"quality_rating,omitempty" validate:"gte=0"`
}

func (p *ReviewPayload) Kind() EventKind { return EventKindReview }

func (p *ReviewPayload) Attributes() map[string]any {
	attrs := map[string]any{
		"content_id":   p.ContentID,
		"action":       string(p.Action),
		"changes_made": p.ChangesMade,
	}
	if p.ReviewTimeMs > 0 {
		attrs["review_time_ms"] = p.ReviewTimeMs
	}
	if p.QualityRating > 0 {
		attrs["quality_rating"] = p.QualityRating
	}
	return attrs
}

// DataQualityPayload describes a catalog completeness measurement.
type DataQualityPayload struct {
	TotalProducts      int      `json:"total_products" validate:"gte=0"`
	CompleteProducts   int      `json:"complete_products" validate:"gte=0"`
	NormalizedProducts int      `json:"normalized_products" validate:"gte=0"`
	QualityScore       float64  `json:"quality_score" validate:"gte=0"`
	IssuesFound        []string `json:"issues_found,omitempty"`
}

func (p *DataQualityPayload) Kind() EventKind { return EventKindDataQuality }

func (p *DataQualityPayload) Attributes() map[string]any {
	attrs := map[string]any{
		"total_products":      p.TotalProducts,
		"complete_products":   p.CompleteProducts,
		"normalized_products": p.NormalizedProducts,
		"quality_score":       p.QualityScore,
	}
	if len(p.IssuesFound) > 0 {
		attrs["issues_found"] = p.IssuesFound
	}
	return attrs
}

// SystemPerformancePayload carries one sampled system metric.
type SystemPerformancePayload struct {
	MetricName        string  `json:"metric_name" validate:"required"`
	MetricValue       float64 `json:"metric_value"`
	MetricUnit        string  `json:"metric_unit"`
	ThresholdBreached bool    `json:"threshold_breached,omitempty"`
	SystemComponent   string  `json:"system_component,omitempty"`
}

func (p *SystemPerformancePayload) Kind() EventKind { return EventKindSystemPerformance }

func (p *SystemPerformancePayload) Attributes() map[string]any {
	attrs := map[string]any{
		"metric_name":  p.MetricName,
		"metric_value": p.MetricValue,
		"metric_unit":  p.MetricUnit,
	}
	if p.ThresholdBreached {
		attrs["threshold_breached"] = true
	}
	if p.SystemComponent != "" {
		attrs["system_component"] = p.SystemComponent
	}
	return attrs
}

// UserInteractionPayload describes a dashboard interaction.
type UserInteractionPayload struct {
	Action       string  `json:"action" validate:"required"`
	Element      string  `json:"element"`
	Page         string  `json:"page"`
	TimeOnPageMs float64 `json:"time_on_page_ms,omitempty" validate:"gte=0"`
}

func (p *UserInteractionPayload) Kind() EventKind { return EventKindUserInteraction }

func (p *UserInteractionPayload) Attributes() map[string]any {
	attrs := map[string]any{
		"action":  p.Action,
		"element": p.Element,
		"page":    p.Page,
	}
	if p.TimeOnPageMs > 0 {
		attrs["time_on_page_ms"] = p.TimeOnPageMs
	}
	return attrs
}
