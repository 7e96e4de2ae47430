package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"resumelift/internal/errors"
	"resumelift/internal/types"
)

// CompileLaTeX compiles LaTeX source on the backend and returns the
// produced PDF bytes. The endpoint is public; no session is needed.
func (c *Client) CompileLaTeX(ctx context.Context, latexCode string) ([]byte, error) {
	payload, err := json.Marshal(types.CompileRequest{LatexCode: latexCode})
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInvalidRequest,
			"Cannot encode request body", err)
	}

	resp, err := c.send(ctx, c.httpc, http.MethodPost, "/api/latex/compile", payload, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewServerError(errors.ErrCodeServerError,
			"Reading compiled PDF failed", err)
	}
	return pdf, nil
}

// ExtractPDFText uploads a PDF and returns its extracted text. The
// endpoint is public; no session is needed.
func (c *Client) ExtractPDFText(ctx context.Context, filename string, pdf io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.NewInternalError(errors.ErrCodeInvalidRequest,
			"Cannot build upload request", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			"Cannot read PDF for upload", err)
	}
	if err := writer.Close(); err != nil {
		return "", errors.NewInternalError(errors.ErrCodeInvalidRequest,
			"Cannot finalize upload request", err)
	}

	resp, err := c.send(ctx, c.httpc, http.MethodPost, "/api/pdf/extract",
		body.Bytes(), writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	var extracted types.ExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&extracted); err != nil {
		return "", errors.NewServerError(errors.ErrCodeServerError,
			"Backend returned an unreadable response body", err)
	}
	return extracted.Text, nil
}
