// Package collab provides HTTP-backed implementations of the pipeline's
// delegated collaborators, talking to the external agents service.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-slidegen-be/pkg/pipeline"
)

// Client implements every pipeline collaborator against the agents service.
type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Collaborators bundles the client for machine construction.
func (c *Client) Collaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Synthesizer: c,
		Negotiation: c,
		Outliner:    c,
		Enricher:    c,
		Assembler:   c,
		Renderer:    c,
		Grader:      c,
		Fixer:       c,
	}
}

// post sends one JSON request and decodes the response into out. Upstream
// 5xx responses become retryable failures; 4xx are terminal.
func (c *Client) post(ctx context.Context, stage, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &pipeline.UpstreamError{Stage: stage, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &pipeline.UpstreamError{Stage: stage, Retryable: true, Err: err}
	}
	if resp.StatusCode >= 500 {
		return &pipeline.UpstreamError{
			Stage:     stage,
			Retryable: true,
			Err:       fmt.Errorf("agents service %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return &pipeline.UpstreamError{
			Stage:     stage,
			Retryable: false,
			Err:       fmt.Errorf("agents service %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) Extract(ctx context.Context, sourceFiles []string) (*pipeline.KnowledgeBase, error) {
	var kb pipeline.KnowledgeBase
	in := map[string]interface{}{"source_files": sourceFiles}
	if err := c.post(ctx, pipeline.StageSynthesis, "/v1/synthesis/extract", in, &kb); err != nil {
		return nil, err
	}
	return &kb, nil
}

type turnResponse struct {
	Question      string              `json:"question,omitempty"`
	CompletedForm *pipeline.OrderForm `json:"completed_form,omitempty"`
}

func (c *Client) NextTurn(ctx context.Context, form pipeline.OrderForm, kbSummary, userMessage string) (*pipeline.TurnResult, error) {
	in := map[string]interface{}{
		"order_form": form,
		"kb_summary": kbSummary,
		"message":    userMessage,
	}
	var out turnResponse
	if err := c.post(ctx, pipeline.StageClarifier, "/v1/clarifier/turn", in, &out); err != nil {
		return nil, err
	}
	return &pipeline.TurnResult{Question: out.Question, CompletedForm: out.CompletedForm}, nil
}

func (c *Client) Plan(ctx context.Context, form pipeline.OrderForm, kb *pipeline.KnowledgeBase) (*pipeline.Skeleton, error) {
	var skeleton pipeline.Skeleton
	in := map[string]interface{}{"order_form": form, "knowledge_base": kb}
	if err := c.post(ctx, pipeline.StageOutliner, "/v1/outliner/plan", in, &skeleton); err != nil {
		return nil, err
	}
	return &skeleton, nil
}

func (c *Client) Enrich(ctx context.Context, skeleton pipeline.Skeleton, kb *pipeline.KnowledgeBase) (*pipeline.EnrichedContent, error) {
	var content pipeline.EnrichedContent
	in := map[string]interface{}{"skeleton": skeleton, "knowledge_base": kb}
	if err := c.post(ctx, pipeline.StageEnricher, "/v1/enricher/enrich", in, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

func (c *Client) Assemble(ctx context.Context, content pipeline.EnrichedContent, themeID string) (*pipeline.RenderedOutput, error) {
	var output pipeline.RenderedOutput
	in := map[string]interface{}{"content": content, "theme_id": themeID}
	if err := c.post(ctx, pipeline.StageAssembler, "/v1/assembler/assemble", in, &output); err != nil {
		return nil, err
	}
	return &output, nil
}

type renderResponse struct {
	Artifact []byte `json:"artifact"`
}

func (c *Client) Render(ctx context.Context, slide pipeline.RenderedSlide) (pipeline.VisualArtifact, error) {
	var out renderResponse
	if err := c.post(ctx, pipeline.StageVisualQA, "/v1/render/capture", map[string]interface{}{"slide": slide}, &out); err != nil {
		return nil, err
	}
	return pipeline.VisualArtifact(out.Artifact), nil
}

type gradeResponse struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

func (c *Client) Grade(ctx context.Context, artifact pipeline.VisualArtifact) (pipeline.Grade, error) {
	var out gradeResponse
	in := map[string]interface{}{"artifact": []byte(artifact)}
	if err := c.post(ctx, pipeline.StageVisualQA, "/v1/qa/grade", in, &out); err != nil {
		return pipeline.Grade{}, err
	}
	return pipeline.Grade{Score: out.Score, Issues: out.Issues}, nil
}

func (c *Client) Fix(ctx context.Context, slide pipeline.RenderedSlide, issues []string) (pipeline.RenderedSlide, error) {
	var out pipeline.RenderedSlide
	in := map[string]interface{}{"slide": slide, "issues": issues}
	if err := c.post(ctx, pipeline.StageVisualQA, "/v1/qa/fix", in, &out); err != nil {
		return pipeline.RenderedSlide{}, err
	}
	return out, nil
}
