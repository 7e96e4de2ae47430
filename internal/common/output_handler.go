package common

import (
	"fmt"

	"resumelift/internal/errors"
	"resumelift/internal/formatters"
)

// CommandConfig holds common configuration for commands
type CommandConfig struct {
	OutputFile   string
	OutputFormat string
}

// OutputHandler handles formatting and writing output
type OutputHandler struct {
	fileProcessor *FileProcessor
	registry      *formatters.FormatterRegistry
	logger        *errors.Logger
}

// NewOutputHandler creates a new output handler
func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	return &OutputHandler{
		fileProcessor: NewFileProcessor(logger),
		registry:      formatters.GlobalRegistry,
		logger:        logger,
	}
}

// HandleOutput formats data and writes it to the specified output
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	// Validate output file
	if err := oh.fileProcessor.ValidateOutputFile(config.OutputFile); err != nil {
		return err
	}

	// Format output using the registry
	output, err := oh.registry.Format(data, config.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", config.OutputFormat), err)
	}

	return oh.WriteRaw([]byte(output), config)
}

// WriteRaw writes pre-formatted bytes to the configured output. Used
// for binary payloads like compiled PDFs that bypass the formatter
// registry.
func (oh *OutputHandler) WriteRaw(data []byte, config CommandConfig) error {
	if config.OutputFile != "" {
		if err := oh.fileProcessor.WriteFile(config.OutputFile, data); err != nil {
			return err // Error already wrapped by WriteFile
		}

		if oh.logger != nil {
			oh.logger.Info("Output written successfully",
				"file", config.OutputFile, "bytes", len(data))
		}
		return nil
	}

	fmt.Print(string(data))
	return nil
}

// GetSupportedFormats returns all supported output formats
func (oh *OutputHandler) GetSupportedFormats() []string {
	return oh.registry.GetSupportedFormats()
}
