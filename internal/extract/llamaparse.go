package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const llamaParseDefaultBaseURL = "https://api.cloud.llamaindex.ai"

// llamaParser sends page batches to the LlamaParse OCR service and polls
// for the markdown result. Scanned Kazakh textbooks need the high-res OCR
// path; plain text extraction returns garbage for them.
type LlamaParseConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Language       string `json:"language"`
	SystemPrompt   string `json:"system_prompt"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	PollSeconds    int    `json:"poll_seconds"`
}

type llamaParser struct {
	client       *resty.Client
	language     string
	systemPrompt string
	pollInterval time.Duration
}

type llamaJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type llamaResultResponse struct {
	Pages []struct {
		Page int    `json:"page"`
		MD   string `json:"md"`
	} `json:"pages"`
}

func NewLlamaParser(cfg LlamaParseConfig) (Parser, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llamaparse api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = llamaParseDefaultBaseURL
	}
	timeout := 300 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	poll := 5 * time.Second
	if cfg.PollSeconds > 0 {
		poll = time.Duration(cfg.PollSeconds) * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(apiKey).
		SetTimeout(timeout)
	return &llamaParser{
		client:       client,
		language:     cfg.Language,
		systemPrompt: cfg.SystemPrompt,
		pollInterval: poll,
	}, nil
}

func (p *llamaParser) Name() string {
	return "llamaparse"
}

func (p *llamaParser) ParsePages(ctx context.Context, pdfPath string, first, last int) ([]PageMarkup, error) {
	jobID, err := p.upload(ctx, pdfPath, first, last)
	if err != nil {
		return nil, err
	}
	if err := p.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}
	return p.fetchResult(ctx, jobID, first)
}

func (p *llamaParser) upload(ctx context.Context, pdfPath string, first, last int) (string, error) {
	file, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	// target_pages is 0-based on the API side.
	targets := make([]string, 0, last-first+1)
	for n := first; n <= last; n++ {
		targets = append(targets, strconv.Itoa(n-1))
	}
	form := map[string]string{
		"target_pages": strings.Join(targets, ","),
		"result_type":  "markdown",
		"high_res_ocr": "true",
	}
	if p.language != "" {
		form["language"] = p.language
	}
	if p.systemPrompt != "" {
		form["system_prompt_append"] = p.systemPrompt
	}

	job := &llamaJobResponse{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(pdfPath), file).
		SetFormData(form).
		SetResult(job).
		Post("/api/parsing/upload")
	if err != nil {
		return "", fmt.Errorf("llamaparse upload: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llamaparse upload: status %d: %s", resp.StatusCode(), resp.String())
	}
	if job.ID == "" {
		return "", fmt.Errorf("llamaparse upload: no job id returned")
	}
	return job.ID, nil
}

func (p *llamaParser) waitForJob(ctx context.Context, jobID string) error {
	for {
		job := &llamaJobResponse{}
		resp, err := p.client.R().
			SetContext(ctx).
			SetResult(job).
			Get("/api/parsing/job/" + jobID)
		if err != nil {
			return fmt.Errorf("llamaparse poll: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("llamaparse poll: status %d: %s", resp.StatusCode(), resp.String())
		}
		switch strings.ToUpper(job.Status) {
		case "SUCCESS":
			return nil
		case "ERROR", "CANCELLED":
			return fmt.Errorf("llamaparse job %s failed: %s", jobID, job.Error)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *llamaParser) fetchResult(ctx context.Context, jobID string, first int) ([]PageMarkup, error) {
	result := &llamaResultResponse{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(result).
		Get("/api/parsing/job/" + jobID + "/result/json")
	if err != nil {
		return nil, fmt.Errorf("llamaparse result: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("llamaparse result: status %d: %s", resp.StatusCode(), resp.String())
	}
	pages := make([]PageMarkup, 0, len(result.Pages))
	for i, page := range result.Pages {
		// The job only saw its own batch, so page numbering restarts at 1;
		// shift back to absolute document pages.
		pages = append(pages, PageMarkup{Page: first + i, Markdown: page.MD})
	}
	return pages, nil
}
