package preprocess

import (
	"image"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/pkg/geometry"
)

// 定位标记搜索窗口半径，相对图像边长
const searchWindowRatio = 0.09

// 标记内暗像素数下限，相对标记理论面积。低于该值视为未找到，
// 避免把纸面阴影误判成标记。
const minMarkerMassRatio = 0.25

// findFiducial 在期望位置附近的窗口内搜索暗色块，返回其质心。
// 阈值取窗口均值的 60%，对光照变化有一定容忍度。
func findFiducial(img *image.Gray, tpl *layout.Template, idx int) (geometry.Point2D, bool) {
	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	expected := tpl.Fiducials[idx].Center()
	cx := expected.X * w
	cy := expected.Y * h

	rx := int(searchWindowRatio * w)
	ry := int(searchWindowRatio * h)

	x0 := clampInt(int(cx)-rx, 0, bounds.Dx()-1)
	x1 := clampInt(int(cx)+rx, 0, bounds.Dx()-1)
	y0 := clampInt(int(cy)-ry, 0, bounds.Dy()-1)
	y1 := clampInt(int(cy)+ry, 0, bounds.Dy()-1)
	if x1 <= x0 || y1 <= y0 {
		return geometry.Point2D{}, false
	}

	// 第一遍：窗口均值
	var sum, count int64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			sum += int64(img.GrayAt(x, y).Y)
			count++
		}
	}
	mean := float64(sum) / float64(count)
	threshold := mean * 0.6

	// 第二遍：暗像素质心
	var mx, my, mass float64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if float64(img.GrayAt(x, y).Y) < threshold {
				mx += float64(x)
				my += float64(y)
				mass++
			}
		}
	}

	expectedArea := tpl.Fiducials[idx].W * w * tpl.Fiducials[idx].H * h
	if mass < minMarkerMassRatio*expectedArea {
		return geometry.Point2D{}, false
	}

	return geometry.Point2D{X: mx / mass, Y: my / mass}, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
