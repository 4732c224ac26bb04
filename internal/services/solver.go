package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mathtutor-backend/internal/models"
)

// placeholderProblem is sent when both the text and the image are effectively
// empty. The request is still attempted rather than rejected locally.
const placeholderProblem = "Solve the math problem shown in the attached image."

// SolverService issues single-shot solve requests against Gemini. There is no
// retry, no backoff, and no timeout beyond the transport defaults.
type SolverService struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	textModel *genai.GenerativeModel
	rateChan  chan struct{} // Token bucket
}

func NewSolverService(apiKey string, concurrentReqs int) (*SolverService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = solutionSchema()

	// Plain-text model for audio transcription.
	textModel := client.GenerativeModel("gemini-3-flash-preview")
	textModel.SetTemperature(0.1)

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &SolverService{
		client:    client,
		model:     model,
		textModel: textModel,
		rateChan:  rateChan,
	}, nil
}

func (s *SolverService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *SolverService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *SolverService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Solve asks the backend for a schema-constrained step-by-step solution.
// text may be empty when imageB64 carries a PNG sketch or photo. Failures are
// typed: *TransportError when the call fails, *DecodeError when the payload
// does not match the expected shape.
func (s *SolverService) Solve(ctx context.Context, text string, level models.ExplanationLevel, imageB64 string) (*models.StructuredSolution, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}
	defer s.releaseRate()

	parts := []genai.Part{genai.Text(buildSolvePrompt(level, problemText(text)))}
	if imageB64 != "" {
		part, err := imagePart(imageB64)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	resp, err := s.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	solution, err := decodeSolution(extractText(resp))
	if err != nil {
		return nil, err
	}
	return solution, nil
}

// Recognize transcribes a spoken problem statement via the Gemini File API
// and returns the top transcript.
func (s *SolverService) Recognize(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}

	file, err := s.client.UploadFile(ctx, "", bytes.NewReader(audio), &genai.UploadFileOptions{
		DisplayName: "spoken-problem",
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio to Gemini: %w", err)
	}
	defer s.client.DeleteFile(context.Background(), file.Name)

	// Wait until the remote file is active
	for i := 0; i < 20; i++ {
		current, getErr := s.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return "", fmt.Errorf("failed to get uploaded file status: %w", getErr)
		}
		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return "", fmt.Errorf("Gemini failed to process uploaded audio")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if file.State != genai.FileStateActive {
		return "", fmt.Errorf("audio file did not become active in time")
	}

	prompt := "Transcribe the spoken math problem verbatim. Return plain text only, without markdown or commentary."

	resp, err := s.textModel.GenerateContent(ctx,
		genai.Text(prompt),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini transcription error: %w", err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", fmt.Errorf("Gemini returned empty transcription")
	}
	return text, nil
}

// Supported always holds once the service is constructed; recognition shares
// the solve client.
func (s *SolverService) Supported() bool {
	return s.client != nil
}

// Helper functions

// problemText falls back to the placeholder when the trimmed input is empty;
// the request is attempted either way.
func problemText(text string) string {
	if p := strings.TrimSpace(text); p != "" {
		return p
	}
	return placeholderProblem
}

// imagePart decodes the base64 sketch or photo into an inline request part.
// A payload that cannot be decoded can never be sent, so the failure is
// transport-class like any other unsendable request.
func imagePart(imageB64 string) (genai.Part, error) {
	img, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("invalid image payload: %w", err)}
	}
	return genai.ImageData("png", img), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// decodeSolution parses the backend payload into a StructuredSolution. The
// response is schema-constrained, but fences and stray prose still show up,
// so the object is salvaged from the raw text before unmarshalling.
func decodeSolution(rawText string) (*models.StructuredSolution, error) {
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")
	rawText = strings.TrimSpace(rawText)

	if rawText == "" {
		return nil, &DecodeError{Err: fmt.Errorf("empty response")}
	}

	var solution models.StructuredSolution
	if err := json.Unmarshal([]byte(rawText), &solution); err != nil {
		// Try to extract the JSON object
		start := strings.Index(rawText, "{")
		end := strings.LastIndex(rawText, "}")
		if start < 0 || end <= start {
			return nil, &DecodeError{Err: err}
		}
		if err := json.Unmarshal([]byte(rawText[start:end+1]), &solution); err != nil {
			return nil, &DecodeError{Err: err}
		}
	}

	if solution.Description == "" && solution.FinalAnswer == "" && len(solution.Steps) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("response missing required fields")}
	}
	return &solution, nil
}

// Four fixed instruction variants, one per explanation level. The academic
// variant stays reachable through the API even though no control surfaces it.
var levelInstructions = map[models.ExplanationLevel]string{
	models.LevelQuick:    "Explain in as few steps as possible. Keep each explanation to one or two short sentences and skip routine algebra.",
	models.LevelStandard: "Explain at a typical classroom level. Show every meaningful step with a short plain-language explanation.",
	models.LevelDeep:     "Explain thoroughly. Spell out every step, justify each manipulation, and point out common mistakes along the way.",
	models.LevelAcademic: "Explain with full mathematical rigor. Name the theorems and definitions used, state assumptions explicitly, and use formal notation throughout.",
}

func buildSolvePrompt(level models.ExplanationLevel, problem string) string {
	var b strings.Builder

	// Layer 1 — Role
	b.WriteString("You are a patient math tutor. Solve the student's problem step by step.\n\n")

	// Layer 2 — Explanation level
	instruction, ok := levelInstructions[level]
	if !ok {
		instruction = levelInstructions[models.LevelStandard]
	}
	b.WriteString("Style: ")
	b.WriteString(instruction)
	b.WriteString("\n\n")

	// Layer 3 — Output contract
	b.WriteString(`Respond with a JSON object:
{"description": "the problem restated", "concepts": ["technique or theorem"], "steps": [{"title": "string", "explanation": "string", "math": "string"}], "final_answer": "string", "tutoring_tip": "string"}

Write all mathematical expressions in LaTeX, using $...$ for inline math and $$...$$ for display math. Keep step order strictly sequential.
`)

	// Layer 4 — Problem
	b.WriteString("\n---PROBLEM---\n")
	b.WriteString(problem)
	b.WriteString("\n---END---\n")

	return b.String()
}

func solutionSchema() *genai.Schema {
	stepSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":       {Type: genai.TypeString},
			"explanation": {Type: genai.TypeString},
			"math":        {Type: genai.TypeString},
		},
		Required: []string{"title", "explanation", "math"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description":  {Type: genai.TypeString},
			"concepts":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"steps":        {Type: genai.TypeArray, Items: stepSchema},
			"final_answer": {Type: genai.TypeString},
			"tutoring_tip": {Type: genai.TypeString},
		},
		Required: []string{"description", "concepts", "steps", "final_answer"},
	}
}
