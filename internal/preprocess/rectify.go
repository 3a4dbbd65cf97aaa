// Package preprocess 把原始拍照图像校正为规范化答题卡图像：
// 依据模板定位标记求仿射变换，重采样到固定尺寸画布，再做对比度
// 归一化，并给出每个气泡在像素空间的 ROI。纯变换，无副作用。
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/geometry"
)

// 规范化画布：A4 纵向 @150dpi
const (
	CanvasWidth  = 1240
	CanvasHeight = 1754
)

// ROI 校正后图像上一个气泡对应的像素区域
type ROI struct {
	Question int // 1 起
	Option   int // 0 起
	Center   geometry.Point2D
	Radius   float64         // 像素
	Rect     image.Rectangle // Center 周围 3r x 3r 的裁剪框
}

// Rectified 校正结果：规范化灰度图 + 全部气泡 ROI
type Rectified struct {
	Canvas   *image.Gray
	ROIs     []ROI
	Residual float64 // 定位标记平均对齐残差（像素）
	Found    int     // 实际找到的定位标记数
}

// ROIFor 第 question 题（1 起）第 option 个选项（0 起）的 ROI
func (r *Rectified) ROIFor(question, option, optionsPerQuestion int) ROI {
	return r.ROIs[(question-1)*optionsPerQuestion+option]
}

// Rectify 解码原始图像并按模板校正。找到的定位标记不足
// layout.MinFiducials 时返回 AlignmentError，这类失败只能通过重新
// 拍摄解决。相同输入必然产生相同输出。
func Rectify(raw []byte, tpl *layout.Template) (*Rectified, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &util.AlignmentError{Issues: []string{fmt.Sprintf("image decode failed: %v", err)}}
	}

	gray := toGray(src)

	// 定位标记搜索
	var canvasPts, rawPts []geometry.Point2D
	var missing []string
	for i := range tpl.Fiducials {
		p, ok := findFiducial(gray, tpl, i)
		if !ok {
			missing = append(missing, fmt.Sprintf("fiducial marker %s not found", layout.FiducialNames[i]))
			continue
		}
		c := tpl.Fiducials[i].Center()
		canvasPts = append(canvasPts, geometry.Point2D{X: c.X * CanvasWidth, Y: c.Y * CanvasHeight})
		rawPts = append(rawPts, p)
	}

	if len(rawPts) < layout.MinFiducials {
		issues := append([]string{fmt.Sprintf("only %d of %d fiducial markers found, need at least %d",
			len(rawPts), len(tpl.Fiducials), layout.MinFiducials)}, missing...)
		return nil, &util.AlignmentError{Issues: issues}
	}

	// 画布坐标 -> 原图坐标，渲染画布时逐像素反向采样
	canvasToRaw, err := estimateAffine(canvasPts, rawPts)
	if err != nil {
		return nil, &util.AlignmentError{Issues: []string{fmt.Sprintf("transform estimation failed: %v", err)}}
	}

	canvas := warp(gray, canvasToRaw)
	normalizeContrast(canvas)

	return &Rectified{
		Canvas:   canvas,
		ROIs:     BuildROIs(tpl),
		Residual: meanResidual(canvasPts, rawPts, canvasToRaw),
		Found:    len(rawPts),
	}, nil
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}
	return gray
}

// warp 逐画布像素经 canvasToRaw 映射回原图做双线性采样。
// 映射出界的像素填白，与纸面底色一致。
func warp(src *image.Gray, canvasToRaw geometry.AffineTransform) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, CanvasWidth, CanvasHeight))
	sb := src.Bounds()
	maxX := float64(sb.Dx() - 1)
	maxY := float64(sb.Dy() - 1)

	for y := 0; y < CanvasHeight; y++ {
		for x := 0; x < CanvasWidth; x++ {
			p := canvasToRaw.Apply(geometry.Point2D{X: float64(x), Y: float64(y)})
			if p.X < 0 || p.Y < 0 || p.X > maxX || p.Y > maxY {
				dst.Pix[y*dst.Stride+x] = 255
				continue
			}
			dst.Pix[y*dst.Stride+x] = bilinear(src, p.X, p.Y)
		}
	}
	return dst
}

func bilinear(img *image.Gray, x, y float64) uint8 {
	b := img.Bounds()
	x0 := int(x)
	y0 := int(y)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > b.Dx()-1 {
		x1 = x0
	}
	if y1 > b.Dy()-1 {
		y1 = y0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	v00 := float64(img.Pix[y0*img.Stride+x0])
	v10 := float64(img.Pix[y0*img.Stride+x1])
	v01 := float64(img.Pix[y1*img.Stride+x0])
	v11 := float64(img.Pix[y1*img.Stride+x1])

	top := v00*(1-fx) + v10*fx
	bottom := v01*(1-fx) + v11*fx
	return uint8(top*(1-fy) + bottom*fy + 0.5)
}

// normalizeContrast 2%/98% 分位线性拉伸，抵消照片亮度差异
func normalizeContrast(img *image.Gray) {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	total := len(img.Pix)

	lo := percentileLevel(hist[:], total, 0.02)
	hi := percentileLevel(hist[:], total, 0.98)
	if hi <= lo {
		return
	}

	scale := 255.0 / float64(hi-lo)
	var lut [256]uint8
	for i := range lut {
		v := (float64(i) - float64(lo)) * scale
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}
	for i, v := range img.Pix {
		img.Pix[i] = lut[v]
	}
}

func percentileLevel(hist []int, total int, p float64) int {
	target := int(p * float64(total))
	cum := 0
	for i, c := range hist {
		cum += c
		if cum >= target {
			return i
		}
	}
	return 255
}

// ROI 裁剪框半宽相对气泡半径的倍数，留出涂写出界的余量
const roiExtent = 1.5

// BuildROIs 由模板生成规范化画布上的全部气泡 ROI。校正流程内部使用，
// 也可用于已经是规范化图像的输入。
func BuildROIs(tpl *layout.Template) []ROI {
	radius := tpl.BubbleRadius * CanvasWidth
	rois := make([]ROI, 0, tpl.QuestionCount*tpl.OptionsPerQuestion)

	for q := 1; q <= tpl.QuestionCount; q++ {
		for o := 0; o < tpl.OptionsPerQuestion; o++ {
			c := tpl.Bubble(q, o)
			cx := c.X * CanvasWidth
			cy := c.Y * CanvasHeight
			ext := roiExtent * radius
			rois = append(rois, ROI{
				Question: q,
				Option:   o,
				Center:   geometry.Point2D{X: cx, Y: cy},
				Radius:   radius,
				Rect: image.Rect(
					clampInt(int(cx-ext), 0, CanvasWidth),
					clampInt(int(cy-ext), 0, CanvasHeight),
					clampInt(int(cx+ext), 0, CanvasWidth),
					clampInt(int(cy+ext), 0, CanvasHeight),
				),
			})
		}
	}
	return rois
}
