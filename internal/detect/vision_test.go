package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/preprocess"
)

func visionRectified(t *testing.T) *preprocess.Rectified {
	t.Helper()
	canvas := image.NewGray(image.Rect(0, 0, preprocess.CanvasWidth, preprocess.CanvasHeight))
	for i := range canvas.Pix {
		canvas.Pix[i] = 255
	}
	return &preprocess.Rectified{Canvas: canvas}
}

// fakeProvider 返回固定 chat completions 回复的假视觉服务
func fakeProvider(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestVisionTierParsesAnswers(t *testing.T) {
	content := `{"answers":[
		{"question":1,"option":"A","confidence":0.97},
		{"question":2,"option":"","confidence":0.90},
		{"question":3,"option":"bd","confidence":0.55}
	]}`
	srv := fakeProvider(t, content)
	defer srv.Close()

	tpl, err := layout.LayoutFor(3, 4)
	if err != nil {
		t.Fatal(err)
	}
	tier := NewVisionTier(VisionConfig{
		Name: "vision-a", BaseURL: srv.URL, APIKey: "test-key", Model: "test-model",
	})

	dets, err := tier.Detect(context.Background(), visionRectified(t), tpl)
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 3 {
		t.Fatalf("expected 3 detections, got %d", len(dets))
	}
	if got, _ := dets[0].Single(); got != "A" {
		t.Errorf("q1: %v", dets[0].Options)
	}
	if !dets[1].Blank() {
		t.Errorf("q2 should be blank: %v", dets[1].Options)
	}
	if !dets[2].Multiple() {
		t.Errorf("q3 should be multi-mark: %v", dets[2].Options)
	}
	if dets[2].Confidence != 0.55 {
		t.Errorf("q3 confidence = %f", dets[2].Confidence)
	}
}

func TestVisionTierCodeFenceTolerance(t *testing.T) {
	content := "```json\n{\"answers\":[{\"question\":1,\"option\":\"C\",\"confidence\":0.8}]}\n```"
	srv := fakeProvider(t, content)
	defer srv.Close()

	tpl, _ := layout.LayoutFor(1, 4)
	tier := NewVisionTier(VisionConfig{Name: "v", BaseURL: srv.URL, APIKey: "test-key"})

	dets, err := tier.Detect(context.Background(), visionRectified(t), tpl)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := dets[0].Single(); got != "C" {
		t.Errorf("got %v", dets[0].Options)
	}
}

func TestVisionTierMalformedResponse(t *testing.T) {
	srv := fakeProvider(t, "sorry, I cannot read this sheet")
	defer srv.Close()

	tpl, _ := layout.LayoutFor(1, 4)
	tier := NewVisionTier(VisionConfig{Name: "v", BaseURL: srv.URL, APIKey: "test-key"})

	if _, err := tier.Detect(context.Background(), visionRectified(t), tpl); err == nil {
		t.Fatal("prose response must be a tier failure")
	}
}

func TestVisionTierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tpl, _ := layout.LayoutFor(1, 4)
	tier := NewVisionTier(VisionConfig{Name: "v", BaseURL: srv.URL, APIKey: "test-key"})

	if _, err := tier.Detect(context.Background(), visionRectified(t), tpl); err == nil {
		t.Fatal("non-200 must be a tier failure")
	}
}

func TestVisionTierTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, "{}")
	}))
	defer srv.Close()

	tpl, _ := layout.LayoutFor(1, 4)
	tier := NewVisionTier(VisionConfig{
		Name: "v", BaseURL: srv.URL, APIKey: "test-key", Timeout: 50 * time.Millisecond,
	})

	if _, err := tier.Detect(context.Background(), visionRectified(t), tpl); err == nil {
		t.Fatal("timeout must be a tier failure")
	}
}

func TestBuildPromptMentionsGeometry(t *testing.T) {
	tpl, _ := layout.LayoutFor(60, 5)
	p := buildPrompt(tpl)
	for _, want := range []string{"60", "5", "A-E"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q: %s", want, p)
		}
	}
}
