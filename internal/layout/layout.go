// Package layout 是答题卡几何编码的唯一事实来源：
// 打印端按模板坐标排版气泡，识别端按同一坐标反查气泡位置，
// 两端必须逐位一致，类似编码器与解码器共享的线格式。
package layout

import (
	"omr_grading_backend/internal/util"
)

// Version 当前模板版本号。几何常量一旦发布不可修改，调整布局必须升版本。
const Version = "v1"

const (
	MinQuestions = 1
	MaxQuestions = 100

	MinOptions = 3
	MaxOptions = 5

	// 每列最多 25 题，最多 4 列
	questionsPerColumn = 25
)

// 页面按 A4 纵向，归一化坐标 (0,0) 为左上角，(1,1) 为右下角。
// pageAspect = 宽/高，用于把"物理上为正方形"的标记换算到归一化坐标。
const pageAspect = 210.0 / 297.0

// 几何常量（归一化）
const (
	fiducialInsetX = 0.050 // 定位标记中心距页边
	fiducialSizeX  = 0.030 // 定位标记边长（宽度方向）

	headerTop    = 0.030
	headerBottom = 0.120

	gridTop    = 0.160 // 题目网格上边界
	gridBottom = 0.930 // 题目网格下边界

	columnLeft  = 0.080 // 第一列题号气泡起始 x
	columnWidth = 0.225 // 列间距

	optionSpacing = 0.036 // 同一题内相邻气泡中心间距
	bubbleRadiusX = 0.011 // 气泡半径（宽度方向归一化）
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Template 一种答题卡版式的完整几何描述，由 (questionCount, optionsPerQuestion)
// 唯一确定。创建后不可变。
type Template struct {
	Version            string
	QuestionCount      int
	OptionsPerQuestion int

	// Fiducials 四个角的定位标记，顺序固定：左上、右上、左下、右下
	Fiducials []Rect

	// Header 页眉信息区：学号栏、考试编号栏
	Header []Rect

	// Bubbles[q][o] 第 q+1 题第 o 个选项的气泡中心
	Bubbles [][]Point

	// BubbleRadius 气泡半径（宽度方向归一化）
	BubbleRadius float64
}

var optionLetters = []string{"A", "B", "C", "D", "E"}

// OptionLetter 选项序号转字母，0 -> "A"
func OptionLetter(i int) string {
	if i < 0 || i >= len(optionLetters) {
		return ""
	}
	return optionLetters[i]
}

// OptionIndex 字母转选项序号，"A" -> 0；非法输入返回 -1
func OptionIndex(letter string) int {
	for i, l := range optionLetters {
		if l == letter {
			return i
		}
	}
	return -1
}

// LayoutFor 生成指定题量与选项数的答题卡模板。纯函数：相同输入永远
// 得到相同的坐标集合。
func LayoutFor(questionCount, optionsPerQuestion int) (*Template, error) {
	if questionCount < MinQuestions || questionCount > MaxQuestions {
		return nil, util.NewConfigurationError("question count %d out of range [%d,%d]",
			questionCount, MinQuestions, MaxQuestions)
	}
	if optionsPerQuestion < MinOptions || optionsPerQuestion > MaxOptions {
		return nil, util.NewConfigurationError("options per question %d out of range [%d,%d]",
			optionsPerQuestion, MinOptions, MaxOptions)
	}

	fx := fiducialSizeX
	fy := fiducialSizeX * pageAspect // 物理正方形
	inX := fiducialInsetX
	inY := fiducialInsetX * pageAspect

	t := &Template{
		Version:            Version,
		QuestionCount:      questionCount,
		OptionsPerQuestion: optionsPerQuestion,
		Fiducials: []Rect{
			{X: inX - fx/2, Y: inY - fy/2, W: fx, H: fy},
			{X: 1 - inX - fx/2, Y: inY - fy/2, W: fx, H: fy},
			{X: inX - fx/2, Y: 1 - inY - fy/2, W: fx, H: fy},
			{X: 1 - inX - fx/2, Y: 1 - inY - fy/2, W: fx, H: fy},
		},
		Header: []Rect{
			{X: 0.150, Y: headerTop, W: 0.440, H: headerBottom - headerTop}, // 学号栏
			{X: 0.620, Y: headerTop, W: 0.250, H: headerBottom - headerTop}, // 考试编号栏
		},
		BubbleRadius: bubbleRadiusX,
	}

	rowHeight := (gridBottom - gridTop) / questionsPerColumn

	t.Bubbles = make([][]Point, questionCount)
	for q := 0; q < questionCount; q++ {
		col := q / questionsPerColumn
		row := q % questionsPerColumn

		baseX := columnLeft + float64(col)*columnWidth
		y := gridTop + (float64(row)+0.5)*rowHeight

		opts := make([]Point, optionsPerQuestion)
		for o := 0; o < optionsPerQuestion; o++ {
			opts[o] = Point{X: baseX + float64(o)*optionSpacing, Y: y}
		}
		t.Bubbles[q] = opts
	}

	return t, nil
}

// Bubble 第 question 题（1 起）第 option 个选项（0 起）的气泡中心
func (t *Template) Bubble(question, option int) Point {
	return t.Bubbles[question-1][option]
}

// Columns 本模板实际占用的列数
func (t *Template) Columns() int {
	return (t.QuestionCount + questionsPerColumn - 1) / questionsPerColumn
}

// MinFiducials 透视校正所需的最少定位标记数。仿射估计最少需要 3 个对应点。
const MinFiducials = 3

// FiducialNames 与 Template.Fiducials 顺序一致的标记名称，用于拼装失败原因
var FiducialNames = []string{"top-left", "top-right", "bottom-left", "bottom-right"}
