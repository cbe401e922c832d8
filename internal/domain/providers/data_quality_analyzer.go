package providers

import "context"

// DataQualityAnalyzer re-runs catalog completeness analysis when a data
// quality event arrives.
type DataQualityAnalyzer interface {
	AnalyzeCompleteness(ctx context.Context) error
}
