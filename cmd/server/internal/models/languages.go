package models

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage 未指定输出语言时使用
const DefaultLanguage = "ar"

// Language 支持的报告输出语言
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	RTL  bool   `json:"rtl"`
}

var languageNameByCode = map[string]string{
	"ar": "Arabic",
	"en": "English",
	"fr": "French",
	"bn": "Bengali",
	"zh": "Chinese",
	"cs": "Czech",
	"da": "Danish",
	"nl": "Dutch",
	"fi": "Finnish",
	"de": "German",
	"el": "Greek",
	"he": "Hebrew",
	"hi": "Hindi",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ms": "Malay",
	"no": "Norwegian",
	"fa": "Persian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"es": "Spanish",
	"sw": "Swahili",
	"sv": "Swedish",
	"tl": "Tagalog",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"ur": "Urdu",
	"vi": "Vietnamese",
}

var rtlLanguages = map[string]bool{"ar": true, "he": true, "fa": true, "ur": true}

// CanonicalLanguage 将输入的语言代码规范化为受支持的基础代码
// 例如 "en-US" -> "en"，"iw" -> "he"；空值返回默认语言
func CanonicalLanguage(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return DefaultLanguage, true
	}
	if _, ok := languageNameByCode[code]; ok {
		return code, true
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	canonical := base.String()
	if canonical == "nb" || canonical == "nn" {
		canonical = "no"
	}
	if canonical == "fil" {
		canonical = "tl"
	}
	if _, ok := languageNameByCode[canonical]; ok {
		return canonical, true
	}
	return "", false
}

// LanguageName 返回语言的英文名称，未收录时使用 CLDR 名称
func LanguageName(code string) string {
	if name, ok := languageNameByCode[code]; ok {
		return name
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// SupportedLanguages 返回全部支持语言，按代码排序（默认语言排首位）
func SupportedLanguages() []Language {
	out := make([]Language, 0, len(languageNameByCode))
	for code, name := range languageNameByCode {
		out = append(out, Language{Code: code, Name: name, RTL: rtlLanguages[code]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code == DefaultLanguage || out[j].Code == DefaultLanguage {
			return out[i].Code == DefaultLanguage
		}
		return out[i].Code < out[j].Code
	})
	return out
}
