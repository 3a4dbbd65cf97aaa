package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/geometry"
)

// renderSheet 按模板画一张合成答题卡：白底、黑色定位标记、
// 空气泡画圆环、filled 指定的气泡整圆涂黑。sheet 占满整幅图像。
func renderSheet(t *testing.T, tpl *layout.Template, w, h int, filled map[int]int) *image.Gray {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	fw := float64(w)
	fh := float64(h)

	for _, f := range tpl.Fiducials {
		x0 := int(f.X * fw)
		y0 := int(f.Y * fh)
		x1 := int((f.X + f.W) * fw)
		y1 := int((f.Y + f.H) * fh)
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}

	radius := tpl.BubbleRadius * fw
	for q := 1; q <= tpl.QuestionCount; q++ {
		for o := 0; o < tpl.OptionsPerQuestion; o++ {
			c := tpl.Bubble(q, o)
			cx := c.X * fw
			cy := c.Y * fh
			if filled[q] == o {
				fillDisk(img, cx, cy, radius, 0)
			} else {
				drawRing(img, cx, cy, radius, 60)
			}
		}
	}
	return img
}

func fillDisk(img *image.Gray, cx, cy, r float64, v uint8) {
	for y := int(cy - r - 1); y <= int(cy+r+1); y++ {
		for x := int(cx - r - 1); x <= int(cx+r+1); x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			if dx*dx+dy*dy <= r*r {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
	}
}

func drawRing(img *image.Gray, cx, cy, r float64, v uint8) {
	for y := int(cy - r - 1); y <= int(cy+r+1); y++ {
		for x := int(cx - r - 1); x <= int(cx+r+1); x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			d := dx*dx + dy*dy
			if d <= r*r && d >= (r-1.5)*(r-1.5) {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// roiMeanDarkness ROI 圆内平均暗度（0 亮 255 暗）
func roiMeanDarkness(rect *Rectified, roi ROI) float64 {
	var sum, count float64
	for y := roi.Rect.Min.Y; y < roi.Rect.Max.Y; y++ {
		for x := roi.Rect.Min.X; x < roi.Rect.Max.X; x++ {
			dx := float64(x) - roi.Center.X
			dy := float64(y) - roi.Center.Y
			if dx*dx+dy*dy <= roi.Radius*roi.Radius {
				sum += 255 - float64(rect.Canvas.Pix[y*rect.Canvas.Stride+x])
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / count
}

func TestRectifySyntheticSheet(t *testing.T) {
	tpl, err := layout.LayoutFor(20, 4)
	if err != nil {
		t.Fatal(err)
	}
	filled := map[int]int{1: 0, 2: 3, 10: 2, 20: 1}
	// 与画布不同的分辨率，校正必须处理缩放
	raw := encodePNG(t, renderSheet(t, tpl, 827, 1169, filled))

	rect, err := Rectify(raw, tpl)
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}

	if rect.Found != 4 {
		t.Errorf("expected 4 fiducials found, got %d", rect.Found)
	}
	if rect.Residual > 3.0 {
		t.Errorf("alignment residual too high: %f px", rect.Residual)
	}
	if len(rect.ROIs) != 20*4 {
		t.Fatalf("expected %d ROIs, got %d", 20*4, len(rect.ROIs))
	}

	// 涂黑气泡在校正图上明显比空气泡暗
	for q, o := range filled {
		dark := roiMeanDarkness(rect, rect.ROIFor(q, o, 4))
		empty := roiMeanDarkness(rect, rect.ROIFor(q, (o+1)%4, 4))
		if dark < empty+60 {
			t.Errorf("q%d: filled option %d darkness %f vs empty %f", q, o, dark, empty)
		}
	}
}

func TestRectifyDeterministic(t *testing.T) {
	tpl, err := layout.LayoutFor(10, 4)
	if err != nil {
		t.Fatal(err)
	}
	raw := encodePNG(t, renderSheet(t, tpl, 620, 877, map[int]int{3: 1}))

	a, err := Rectify(raw, tpl)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Rectify(raw, tpl)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Canvas.Pix, b.Canvas.Pix) {
		t.Error("rectified canvas differs between identical invocations")
	}
}

func TestRectifyNoFiducials(t *testing.T) {
	tpl, err := layout.LayoutFor(10, 4)
	if err != nil {
		t.Fatal(err)
	}
	blank := image.NewGray(image.Rect(0, 0, 600, 800))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}

	_, err = Rectify(encodePNG(t, blank), tpl)
	var alignErr *util.AlignmentError
	if !errors.As(err, &alignErr) {
		t.Fatalf("expected AlignmentError, got %v", err)
	}
	found := false
	for _, issue := range alignErr.Issues {
		if strings.Contains(issue, "fiducial") {
			found = true
		}
	}
	if !found {
		t.Errorf("issues should mention fiducial markers: %v", alignErr.Issues)
	}
}

func TestRectifyGarbageBytes(t *testing.T) {
	tpl, err := layout.LayoutFor(10, 4)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Rectify([]byte("not an image"), tpl)
	var alignErr *util.AlignmentError
	if !errors.As(err, &alignErr) {
		t.Fatalf("expected AlignmentError for undecodable input, got %v", err)
	}
}

func TestEstimateAffineRecoversKnownTransform(t *testing.T) {
	want := geometry.AffineTransform{A: 0.95, B: 0.04, TX: 14, C: -0.03, D: 1.02, TY: -9}
	src := []geometry.Point2D{{X: 10, Y: 10}, {X: 500, Y: 30}, {X: 40, Y: 700}, {X: 480, Y: 690}}
	dst := make([]geometry.Point2D, len(src))
	for i, p := range src {
		dst[i] = want.Apply(p)
	}

	got, err := estimateAffine(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range src {
		if want.Apply(p).Distance(got.Apply(p)) > 1e-6 {
			t.Fatalf("estimated transform diverges: want %+v got %+v", want, got)
		}
	}

	if res := meanResidual(src, dst, got); res > 1e-6 {
		t.Errorf("residual should be ~0 for exact correspondences, got %g", res)
	}
}

func TestEstimateAffineTooFewPoints(t *testing.T) {
	pts := []geometry.Point2D{{X: 1, Y: 1}, {X: 2, Y: 2}}
	if _, err := estimateAffine(pts, pts); err == nil {
		t.Error("expected error with fewer than 3 points")
	}
}
