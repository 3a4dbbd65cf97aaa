package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/preprocess"

	"golang.org/x/image/draw"
	"golang.org/x/time/rate"
)

// VisionConfig 一个远程视觉模型提供方的接入参数
type VisionConfig struct {
	Name    string        `mapstructure:"name"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerMinute 对该提供方的限速，0 表示不限
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// VisionTier 调用 OpenAI 风格 chat completions 视觉接口的识别层。
// 同一个实现适配所有提供方，具体模型由配置决定。
type VisionTier struct {
	cfg     VisionConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewVisionTier(cfg VisionConfig) *VisionTier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return &VisionTier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

func (t *VisionTier) Name() string {
	return t.cfg.Name
}

type visionChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type visionContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type visionChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// 模型要求返回的 JSON 结构
type visionAnswers struct {
	Answers []struct {
		Question   int     `json:"question"`
		Option     string  `json:"option"`
		Confidence float64 `json:"confidence"`
	} `json:"answers"`
}

// 发给模型的图像宽度。识别气泡不需要全分辨率，压缩可显著降低
// 延迟与调用成本。
const visionImageWidth = 620

func (t *VisionTier) Detect(ctx context.Context, rect *preprocess.Rectified, tpl *layout.Template) ([]QuestionDetection, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	dataURI, err := encodeCanvas(rect.Canvas)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	prompt := buildPrompt(tpl)
	reqBody := map[string]interface{}{
		"model": t.cfg.Model,
		"messages": []visionChatMessage{
			{Role: "system", Content: "You are an optical mark recognition engine. Respond with JSON only, no prose."},
			{Role: "user", Content: []visionContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &struct {
					URL string `json:"url"`
				}{URL: dataURI}},
			}},
		},
		"temperature": 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result visionChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("vision API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("vision API returned no choices")
	}

	return parseAnswers(result.Choices[0].Message.Content)
}

// buildPrompt 把几何契约讲给模型听：题量、选项数、列式走向
func buildPrompt(tpl *layout.Template) string {
	return fmt.Sprintf(
		"The image is a rectified bubble answer sheet with %d questions, %d options each (letters A-%s). "+
			"Questions flow top to bottom in columns of 25, columns left to right. "+
			"For every question report which bubble is filled. Use \"\" for blank and concatenated letters (e.g. \"AC\") when several are filled. "+
			"Report a confidence between 0 and 1 per question. "+
			"Answer with exactly this JSON shape: {\"answers\":[{\"question\":1,\"option\":\"A\",\"confidence\":0.98}]} "+
			"with one entry for each question from 1 to %d.",
		tpl.QuestionCount, tpl.OptionsPerQuestion, layout.OptionLetter(tpl.OptionsPerQuestion-1), tpl.QuestionCount)
}

// encodeCanvas 降采样后编码为 JPEG data URI
func encodeCanvas(canvas *image.Gray) (string, error) {
	b := canvas.Bounds()
	h := b.Dy() * visionImageWidth / b.Dx()
	small := image.NewGray(image.Rect(0, 0, visionImageWidth, h))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), canvas, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// parseAnswers 解析模型回复。容忍 markdown 代码块包裹，其余格式
// 偏差一律按层失败处理，交给引擎降级。
func parseAnswers(content string) ([]QuestionDetection, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var parsed visionAnswers
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("malformed answer JSON: %w", err)
	}
	if len(parsed.Answers) == 0 {
		return nil, fmt.Errorf("answer JSON contains no entries")
	}

	dets := make([]QuestionDetection, 0, len(parsed.Answers))
	for _, a := range parsed.Answers {
		var opts []string
		for _, r := range strings.ToUpper(strings.TrimSpace(a.Option)) {
			opts = append(opts, string(r))
		}
		dets = append(dets, QuestionDetection{
			Question:   a.Question,
			Options:    opts,
			Confidence: a.Confidence,
		})
	}
	return dets, nil
}
