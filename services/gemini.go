package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/models"
)

// TextEmbedder turns a text span into a fixed-dimension vector.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ImageAnnotator analyzes a batch of images and returns one annotation per
// image, aligned with the input order.
type ImageAnnotator interface {
	AnnotateImages(ctx context.Context, images []ImageData, maxTags int) ([]models.Annotation, error)
}

// AudioTranscriber transcribes an audio file to plain text.
type AudioTranscriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// ImageData is one raw image ready to be sent to the vision model.
type ImageData struct {
	Data     []byte
	MIMEType string
}

// GeminiClient implements the three AI capabilities against the Gemini API.
// It is constructed explicitly and injected; there is no package-level
// client.
type GeminiClient struct {
	client *genai.Client
	cfg    config.GeminiConfig
}

// NewGeminiClient builds a client from config.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize genai client")
	}

	return &GeminiClient{client: client, cfg: cfg}, nil
}

// EmbedText generates an embedding with the configured output dimension.
func (c *GeminiClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text cannot be empty for embedding generation")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	outputDim := int32(c.cfg.EmbedDimensions)
	result, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &outputDim})
	if err != nil {
		return nil, errors.Wrap(err, "embedding generation failed")
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("no embedding returned from API")
	}
	embedding := result.Embeddings[0].Values
	if len(embedding) != c.cfg.EmbedDimensions {
		return nil, errors.Errorf("embedding dimension mismatch: expected %d, got %d",
			c.cfg.EmbedDimensions, len(embedding))
	}
	return embedding, nil
}

const annotationPromptFormat = `Analyze these %d images and provide detailed information about each one.

Return ONLY a valid JSON array with one object per image, where each object has this exact structure:

{
  "tags": [<up to %d descriptive tags as strings>],
  "objects": [
    {
      "name": "<object name>",
      "location": "<location in image>"
    }
  ],
  "scene_type": "<type of scene: indoor, outdoor, urban, nature, etc.>",
  "colors": [<dominant colors as strings>],
  "description": "<brief description of image content>"
}

Only respond with the raw JSON array, with no markdown formatting, no code blocks, no explanations.
The response must start with '[' and end with ']' and be valid JSON that can be parsed directly.`

// AnnotateImages sends the whole batch in a single vision call and parses
// the JSON-array response. The result is aligned 1:1 with the input; any
// mismatch or parse failure is an error for the entire batch.
func (c *GeminiClient) AnnotateImages(ctx context.Context, images []ImageData, maxTags int) ([]models.Annotation, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(fmt.Sprintf(annotationPromptFormat, len(images), maxTags)))
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}

	temperature := float32(0.1)
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.VisionModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: 4096,
		})
	if err != nil {
		return nil, errors.Wrap(err, "vision analysis failed")
	}

	text := responseText(resp)
	if text == "" {
		return nil, errors.New("empty response from vision model")
	}

	annotations, err := parseAnnotations(text)
	if err != nil {
		return nil, err
	}
	if len(annotations) != len(images) {
		return nil, errors.Errorf("annotation count mismatch: sent %d images, got %d results",
			len(images), len(annotations))
	}
	return annotations, nil
}

const transcriptionPrompt = `Please transcribe this audio file to text.
Provide only the transcribed text without any additional commentary or formatting.
If the audio is unclear or inaudible, indicate that in the transcription.`

// TranscribeFile transcribes the audio file at path.
func (c *GeminiClient) TranscribeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read audio file %s", path)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(transcriptionPrompt),
		genai.NewPartFromBytes(data, audioMIMEType(path)),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.VisionModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", errors.Wrap(err, "transcription failed")
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", errors.New("empty transcription response")
	}
	return text, nil
}

func audioMIMEType(path string) string {
	switch {
	case strings.HasSuffix(path, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(path, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(path, ".flac"):
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// responseText concatenates the text parts of the first candidate that has
// any.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// parseAnnotations decodes the model's JSON array, tolerating markdown code
// fences around it.
func parseAnnotations(text string) ([]models.Annotation, error) {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var annotations []models.Annotation
	if err := json.Unmarshal([]byte(cleaned), &annotations); err != nil {
		return nil, errors.Wrap(err, "failed to parse annotation response")
	}
	return annotations, nil
}
