package domain

import (
	"regexp"
	"strings"
)

// Key 是同一次拍摄的共享标识（例如 JPEG 与同名 RAW）。
//
// 取值：文件名去掉扩展名后，最后一个 '_' 之后的部分。
type Key string

// CanonicalNameLen 是可直接复用的规范名长度（不含扩展名）：
// "YYYY-MM-DD-HH-MM-SS" + "_" + 8 位 key。
const CanonicalNameLen = 28

var (
	canonicalRE = regexp.MustCompile(`(?i)^[0-9]+(-[0-9]+)+_[a-z0-9]+$`)
	stampRE     = regexp.MustCompile(`^[0-9]+(-[0-9]+)+$`)
)

// SplitName 把文件名拆成 stem（第一个 '.' 之前）与剩余部分（含 '.'，可能为空）。
func SplitName(name string) (stem, rest string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

// KeyOf 返回 stem 中最后一个 '_' 之后的部分；没有 '_' 时即 stem 本身。
func KeyOf(stem string) Key {
	if i := strings.LastIndexByte(stem, '_'); i >= 0 {
		return Key(stem[i+1:])
	}
	return Key(stem)
}

// Suffix 返回完整文件名（含扩展名）中最后一个 '_' 之后的部分。
func Suffix(name string) string {
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// IsCanonical 判断 stem 是否已经是规范名：长度恰为 28 且整体匹配 digits(-digits)+_alnum（不区分大小写）。
// 长度或格式任一不符，都应回退到元数据重新推导。
func IsCanonical(stem string) bool {
	return len(stem) == CanonicalNameLen && canonicalRE.MatchString(stem)
}

// NormalizeStamp 把元数据中的时间（例如 "2021:05:02 10:15:00"）规范化为 "2021-05-02-10-15-00"。
//
// 约束：结果必须是 digits(-digits)+，且前 7 个字符形如 YYYY-MM（年/月目录由此切出）。
func NormalizeStamp(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer(" ", "-", ":", "-").Replace(s)
	if len(s) < 7 || s[4] != '-' || !stampRE.MatchString(s) {
		return "", false
	}
	return s, true
}

// CanonicalName 拼出 "<stamp>_<key>"。
func CanonicalName(stamp string, key Key) string {
	return stamp + "_" + string(key)
}
