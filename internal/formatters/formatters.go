package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"resumelift/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "OptimizationResult", &ResultTextFormatter{})
	registry.RegisterFormatter("markdown", "OptimizationResult", &ResultMarkdownFormatter{})
	registry.RegisterFormatter("text", "RunList", &RunListTextFormatter{})
	registry.RegisterFormatter("markdown", "RunList", &RunListMarkdownFormatter{})
	registry.RegisterFormatter("text", "User", &UserTextFormatter{})
	registry.RegisterFormatter("text", "APIKeyStatus", &APIKeyStatusTextFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	// Try specific formatter first
	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		// Fall back to generic formatter
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.OptimizationResult:
		return "OptimizationResult"
	case []types.Run:
		return "RunList"
	case types.User:
		return "User"
	case types.APIKeyStatus:
		return "APIKeyStatus"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// ResultTextFormatter handles text formatting for optimization results
type ResultTextFormatter struct{}

func (rtf *ResultTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.OptimizationResult)
	if !ok {
		return "", fmt.Errorf("expected OptimizationResult, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== OPTIMIZED RESUME ===\n\n")
	output.WriteString(result.ModifiedResume)
	output.WriteString("\n\n")

	output.WriteString("=== ATS SCORES ===\n")
	output.WriteString(fmt.Sprintf("Before: %.1f/100\n", result.ATSScoreBefore))
	output.WriteString(fmt.Sprintf("After:  %.1f/100\n", result.ATSScoreAfter))
	output.WriteString(fmt.Sprintf("Delta:  %+.1f\n\n", result.ImprovementDelta))

	output.WriteString("=== RUN ===\n")
	if result.RunID != "" {
		output.WriteString(fmt.Sprintf("ID:         %s\n", result.RunID))
	}
	output.WriteString(fmt.Sprintf("Status:     %s\n", result.FinalStatus))
	output.WriteString(fmt.Sprintf("Iterations: %d\n", result.IterationCount))

	return output.String(), nil
}

func (rtf *ResultTextFormatter) SupportedType() string {
	return "OptimizationResult"
}

// ResultMarkdownFormatter handles markdown formatting for optimization results
type ResultMarkdownFormatter struct{}

func (rmf *ResultMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.OptimizationResult)
	if !ok {
		return "", fmt.Errorf("expected OptimizationResult, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# Optimized Resume\n\n")
	output.WriteString(result.ModifiedResume)
	output.WriteString("\n\n")

	output.WriteString("## ATS Scores\n\n")
	output.WriteString(fmt.Sprintf("**Before:** %.1f/100\n\n", result.ATSScoreBefore))
	output.WriteString(fmt.Sprintf("**After:** %.1f/100\n\n", result.ATSScoreAfter))
	output.WriteString(fmt.Sprintf("**Improvement:** %+.1f\n\n", result.ImprovementDelta))

	output.WriteString("## Run\n\n")
	if result.RunID != "" {
		output.WriteString(fmt.Sprintf("**ID:** %s\n\n", result.RunID))
	}
	output.WriteString(fmt.Sprintf("**Status:** %s\n\n", result.FinalStatus))
	output.WriteString(fmt.Sprintf("**Iterations:** %d\n", result.IterationCount))

	return output.String(), nil
}

func (rmf *ResultMarkdownFormatter) SupportedType() string {
	return "OptimizationResult"
}

// RunListTextFormatter handles text formatting for run lists
type RunListTextFormatter struct{}

func (rlf *RunListTextFormatter) Format(data any) (string, error) {
	runs, ok := data.([]types.Run)
	if !ok {
		return "", fmt.Errorf("expected []Run, got %T", data)
	}

	if len(runs) == 0 {
		return "No optimization runs recorded.\n", nil
	}

	var output strings.Builder
	output.WriteString("=== OPTIMIZATION RUNS ===\n\n")
	for i, run := range runs {
		output.WriteString(fmt.Sprintf("%d. %s\n", i+1, run.ID))
		output.WriteString(fmt.Sprintf("   Status: %s\n", run.Status))
		if run.CreatedAt != nil {
			output.WriteString(fmt.Sprintf("   Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05")))
		}
		if run.JobDescription != "" {
			output.WriteString(fmt.Sprintf("   Job: %s\n", truncate(run.JobDescription, 80)))
		}
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (rlf *RunListTextFormatter) SupportedType() string {
	return "RunList"
}

// RunListMarkdownFormatter handles markdown formatting for run lists
type RunListMarkdownFormatter struct{}

func (rlm *RunListMarkdownFormatter) Format(data any) (string, error) {
	runs, ok := data.([]types.Run)
	if !ok {
		return "", fmt.Errorf("expected []Run, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Optimization Runs\n\n")

	if len(runs) == 0 {
		output.WriteString("No optimization runs recorded.\n")
		return output.String(), nil
	}

	output.WriteString("| # | ID | Status | Created |\n")
	output.WriteString("|---|----|--------|---------|\n")
	for i, run := range runs {
		created := ""
		if run.CreatedAt != nil {
			created = run.CreatedAt.Format("2006-01-02 15:04")
		}
		output.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", i+1, run.ID, run.Status, created))
	}

	return output.String(), nil
}

func (rlm *RunListMarkdownFormatter) SupportedType() string {
	return "RunList"
}

// UserTextFormatter handles text formatting for the current user profile
type UserTextFormatter struct{}

func (utf *UserTextFormatter) Format(data any) (string, error) {
	user, ok := data.(types.User)
	if !ok {
		return "", fmt.Errorf("expected User, got %T", data)
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("Email: %s\n", user.Email))
	output.WriteString(fmt.Sprintf("ID:    %s\n", user.ID))
	if user.CreatedAt != nil {
		output.WriteString(fmt.Sprintf("Since: %s\n", user.CreatedAt.Format("2006-01-02")))
	}
	return output.String(), nil
}

func (utf *UserTextFormatter) SupportedType() string {
	return "User"
}

// APIKeyStatusTextFormatter handles text formatting for the API key status
type APIKeyStatusTextFormatter struct{}

func (asf *APIKeyStatusTextFormatter) Format(data any) (string, error) {
	status, ok := data.(types.APIKeyStatus)
	if !ok {
		return "", fmt.Errorf("expected APIKeyStatus, got %T", data)
	}

	if !status.HasAPIKey {
		return "No provider API key stored.\n", nil
	}

	var output strings.Builder
	output.WriteString("Provider API key is stored.\n")
	if status.UpdatedAt != "" {
		output.WriteString(fmt.Sprintf("Last updated: %s\n", status.UpdatedAt))
	}
	return output.String(), nil
}

func (asf *APIKeyStatusTextFormatter) SupportedType() string {
	return "APIKeyStatus"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
