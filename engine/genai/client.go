// Package genai is the REST client for the remote generative-language
// endpoint used to produce preliminary health diagnoses. It owns prompt
// construction, the HTTP error taxonomy, truncation continuation, and
// response parsing. The client never lets a failure escape its boundary:
// every operation returns either usable text, an "ERROR:"-prefixed string,
// or a failed DiagnosisResult.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the generative-language models endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1/models"
	// DefaultModel is the model currently available in this environment.
	DefaultModel = "gemini-2.5-flash"
	// DefaultEmbedModel backs EmbedText.
	DefaultEmbedModel = "text-embedding-004"

	connectTimeout = 15 * time.Second
	callTimeout    = 30 * time.Second

	// Generation parameters are behavioral constants, not tuning knobs:
	// exactly one continuation attempt with the reduced budget is made when
	// the first response is cut off for length.
	genTemperature     = 0.6
	genMaxTokens       = 1400
	continuationTokens = 800

	jpegQuality = 80

	errPrefix = "ERROR:"
	// noTextSentinel is returned when a 2xx response cannot be navigated.
	noTextSentinel = "(sin texto extraído)"

	finishReasonMaxTokens = "MAX_TOKENS"
)

// Client talks to the generative endpoint. It is safe for concurrent use;
// the underlying http.Client pools connections across calls.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint base URL (no trailing slash).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithModel overrides the generation model identifier.
func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

// WithEmbedModel overrides the embedding model identifier.
func WithEmbedModel(m string) Option {
	return func(c *Client) { c.embedModel = m }
}

// WithHTTPClient injects a custom http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. The HTTP client enforces the fixed transport
// timeouts on every outbound call, including model discovery and the
// continuation retry.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		embedModel: DefaultEmbedModel,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: callTimeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			}),
		}
	}
	return c
}

// --- wire types ---

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	// Older response shapes.
	Predictions []string `json:"predictions"`
	Output      string   `json:"output"`
}

type listModelsResponse struct {
	Models []struct {
		Name             string   `json:"name"`
		Model            string   `json:"model"`
		SupportedMethods []string `json:"supportedMethods"`
	} `json:"models"`
}

// --- public operations ---

// MsgBlankKey instructs the operator how to configure the API key. Returned
// without any network I/O when the key is blank.
const MsgBlankKey = "GEMINI_API_KEY está vacío o no configurado. " +
	"Para usar análisis de IA configura la variable de entorno GEMINI_API_KEY y reinicia el servicio. " +
	"Mientras tanto, se usará análisis local fallback."

// AnalyzeHealthData sends the full metrics bundle and returns a structured
// diagnosis. extraContext entries (knowledge-graph findings, similar past
// episodes) are appended to the prompt when present.
func (c *Client) AnalyzeHealthData(ctx context.Context, metrics domain.HealthMetrics, extraContext ...string) domain.DiagnosisResult {
	if strings.TrimSpace(c.apiKey) == "" {
		c.logger.Warn("genai: blank API key, refusing remote call")
		return domain.ErrorResult(MsgBlankKey)
	}

	prompt := buildJSONHealthPrompt(metrics, extraContext)
	raw := c.generate(ctx, []part{{Text: prompt}})
	if strings.HasPrefix(raw, errPrefix) {
		return domain.ErrorResult(strings.TrimSpace(strings.TrimPrefix(raw, errPrefix)))
	}

	// JSON mode is the primary, well-typed path; free-text extraction is
	// strictly the degraded fallback parser.
	if result, ok := parseJSONDiagnosis(raw); ok {
		return result
	}
	return parseTextDiagnosis(raw)
}

// AnalyzeHealthImage sends a multimodal prompt with the JPEG-encoded image
// inline. Returns raw extracted text, or an "ERROR:"-prefixed string.
func (c *Client) AnalyzeHealthImage(ctx context.Context, jpegData []byte, bodyPart, extraContext string) string {
	if strings.TrimSpace(c.apiKey) == "" {
		return errPrefix + " " + MsgBlankKey
	}
	prompt := strings.TrimSpace(fmt.Sprintf("Analiza esta imagen del cuerpo: %s. %s", bodyPart, extraContext))
	return c.generate(ctx, []part{
		{Text: prompt},
		{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(jpegData),
		}},
	})
}

// AnalyzeVoiceMetrics sends a text-only prompt describing the voice capture.
// Returns raw extracted text, or an "ERROR:"-prefixed string.
func (c *Client) AnalyzeVoiceMetrics(ctx context.Context, durationMillis int64, pitchVariation float64, breathingPattern string, coughDetected bool) string {
	if strings.TrimSpace(c.apiKey) == "" {
		return errPrefix + " " + MsgBlankKey
	}
	prompt := fmt.Sprintf(
		"Analiza métricas de voz:\n- Duración: %dms\n- PitchVar: %g\n- Respiración: %s\n- Tos: %t",
		durationMillis, pitchVariation, breathingPattern, coughDetected)
	return c.generate(ctx, []part{{Text: prompt}})
}

// EncodeJPEG renders an image as JPEG at the quality the endpoint expects.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("genai: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// --- core call path ---

// generate runs one generation call with the shared protocol behavior:
// rate limiting, status taxonomy, 404 model-discovery retry, and a single
// MAX_TOKENS continuation. The result is either extracted text or an
// "ERROR:"-prefixed string.
func (c *Client) generate(ctx context.Context, parts []part) string {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Sprintf("%s %v", errPrefix, err)
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: generationConfig{Temperature: genTemperature, MaxOutputTokens: genMaxTokens},
	})
	if err != nil {
		return fmt.Sprintf("%s %v", errPrefix, err)
	}

	status, respBody, err := c.post(ctx, c.model, body)
	if err != nil {
		return transportError(err)
	}

	if status < 200 || status >= 300 {
		return c.handleErrorStatus(ctx, status, respBody, body)
	}

	resp, text := extractText(respBody)
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == finishReasonMaxTokens {
		c.logger.Warn("genai: response truncated by MAX_TOKENS, attempting one continuation")
		if combined, ok := c.continueGeneration(ctx, text); ok {
			return combined
		}
	}
	if text == "" {
		return noTextSentinel
	}
	return text
}

// handleErrorStatus maps non-2xx statuses to the protocol error taxonomy.
// A 404 triggers one model-discovery retry with the exact same request body.
func (c *Client) handleErrorStatus(ctx context.Context, status int, respBody, reqBody []byte) string {
	detail := strings.TrimSpace(string(respBody))
	if detail == "" {
		detail = "(no body)"
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("%s Autenticación fallida (código %d). Verifica GEMINI_API_KEY y restricciones de la clave. Detalle: %s",
			errPrefix, status, detail)
	case http.StatusTooManyRequests:
		return errPrefix + " Límite de peticiones alcanzado (429). Intenta más tarde."
	case http.StatusNotFound:
		alt, err := c.discoverModel(ctx)
		if err != nil || alt == "" {
			c.logger.Warn("genai: model discovery failed", "error", err)
			return fmt.Sprintf("%s Modelo o endpoint no encontrado (404). Asegúrate de que el modelo configurado está disponible. Detalle: %s",
				errPrefix, detail)
		}
		c.logger.Warn("genai: model unavailable, retrying with discovered model",
			"model", c.model, "alternative", alt)
		retryStatus, retryBody, err := c.post(ctx, alt, reqBody)
		if err != nil {
			return transportError(err)
		}
		if retryStatus < 200 || retryStatus >= 300 {
			return fmt.Sprintf("%s API error %d: %s", errPrefix, retryStatus, strings.TrimSpace(string(retryBody)))
		}
		if _, text := extractText(retryBody); text != "" {
			return text
		}
		return noTextSentinel
	default:
		return fmt.Sprintf("%s API error %d: %s", errPrefix, status, detail)
	}
}

// continueGeneration issues exactly one follow-up call with the reduced
// token budget and concatenates partial + continuation. A failed or empty
// continuation leaves the partial text as the final answer.
func (c *Client) continueGeneration(ctx context.Context, partial string) (string, bool) {
	contPrompt := "Continúa la respuesta anterior y complétala coherentemente. Texto actual:\n" +
		partial + "\n\nContinúa desde aquí sin repetir lo anterior."

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: contPrompt}}}},
		GenerationConfig: generationConfig{Temperature: genTemperature, MaxOutputTokens: continuationTokens},
	})
	if err != nil {
		return "", false
	}

	status, respBody, err := c.post(ctx, c.model, body)
	if err != nil || status < 200 || status >= 300 {
		c.logger.Warn("genai: continuation failed", "status", status, "error", err)
		return "", false
	}
	_, extra := extractText(respBody)
	combined := strings.TrimSpace(partial + "\n" + extra)
	if combined == "" {
		return "", false
	}
	return combined, true
}

// discoverModel lists available models and picks the first one advertising
// a generation capability, else the first model listed.
func (c *Client) discoverModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?key="+c.apiKey, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("genai: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("genai: list models: status %d", resp.StatusCode)
	}
	var list listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("genai: list models decode: %w", err)
	}
	if len(list.Models) == 0 {
		return "", errors.New("genai: no models advertised")
	}

	first := ""
	for _, m := range list.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name == "" {
			continue
		}
		short := name[strings.LastIndex(name, "/")+1:]
		if first == "" {
			first = short
		}
		for _, method := range m.SupportedMethods {
			if strings.Contains(strings.ToLower(method), "generate") {
				return short, nil
			}
		}
	}
	return first, nil
}

// post issues one generation POST against the given model.
func (c *Client) post(ctx context.Context, model string, body []byte) (int, []byte, error) {
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// extractText navigates the response structure. It returns the parsed
// response (nil when the body is not valid JSON) and the extracted text
// (empty when no known field is present).
func extractText(body []byte) (*generateResponse, string) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, ""
	}
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			return &resp, t
		}
	}
	if len(resp.Predictions) > 0 {
		return &resp, resp.Predictions[0]
	}
	if resp.Output != "" {
		return &resp, resp.Output
	}
	return &resp, ""
}

// transportError converts network-level failures into the distinct
// human-readable messages of the error taxonomy.
func transportError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errPrefix + " Tiempo de espera agotado al contactar la API de IA"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errPrefix + " No se puede resolver el host de la API. Comprueba tu conexión a internet"
	}
	return fmt.Sprintf("%s %v", errPrefix, err)
}
