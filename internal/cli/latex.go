package cli

import (
	"fmt"
	"os"

	"resumelift/internal/common"
	"resumelift/internal/utils"

	"github.com/spf13/cobra"
)

var compileOutput string
var extractOutput string

var compileCmd = &cobra.Command{
	Use:   "compile [tex-file]",
	Short: "Compile a LaTeX resume to PDF on the backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract plain text from a PDF resume",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "resume.pdf", "Output PDF path")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output file path (default: stdout)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	fileProcessor := common.NewFileProcessor(logger)
	latexCode, err := fileProcessor.ReadFile(args[0])
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	pdf, err := client.CompileLaTeX(cmd.Context(), latexCode)
	if err != nil {
		return err
	}

	if err := fileProcessor.WriteFile(compileOutput, pdf); err != nil {
		return err
	}

	logger.Info("LaTeX compiled", "source", args[0], "output", compileOutput,
		"size", utils.FormatFileSize(int64(len(pdf))))
	fmt.Printf("Wrote %s (%s).\n", compileOutput, utils.FormatFileSize(int64(len(pdf))))
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	if err := utils.ValidateInputFile(args[0]); err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", args[0], err)
	}
	defer file.Close() //nolint:errcheck

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	text, err := client.ExtractPDFText(cmd.Context(), args[0], file)
	if err != nil {
		return err
	}

	return common.NewOutputHandler(logger).WriteRaw([]byte(text),
		common.CommandConfig{OutputFile: extractOutput})
}
