package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 提交处理状态
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// 成绩状态
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// 图片相关常量
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

var (
	AllowedImageExtensions = []string{".jpg", ".jpeg", ".png"}
)
