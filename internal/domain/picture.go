package domain

// PictureKind 区分主图片扩展名与 RAW 扩展名。
// 只有主图片参与 key 提取；RAW 通过共享 key 继承规范名。
type PictureKind string

const (
	KindPrimary PictureKind = "primary"
	KindRaw     PictureKind = "raw"
)

// PictureFile 描述一次扫描得到的图片文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 相对根目录的任何路径段都不以 '.' 开头
type PictureFile struct {
	AbsPath string
	RelPath string
	Name    string // base name with ext
	Stem    string // name before the first '.'
	Ext     string // "jpg"（小写、无 '.'）
	Kind    PictureKind
	Size    int64
}

// Extraction 是 key 提取的成功结果。
type Extraction struct {
	Key  Key
	Name string // CanonicalFilename（不含扩展名）
	// Reused 表示文件名本身已是规范名，未读取元数据。
	Reused bool
}
