package utils

// Server-side i18n covers only the error messages the API returns.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":               "ok",
		"error.invalid":           "The request is invalid.",
		"error.not_found":         "Not found.",
		"error.expired":           "This review link has expired.",
		"error.already_burned":    "This review link has already been used.",
		"error.locked_out":        "Reviewing is temporarily disabled for your account.",
		"error.transient":         "Something went wrong. Please try again.",
		"error.unauthorized":      "Please sign in again.",
		"error.forbidden":         "This action is not allowed.",
		"error.too_many_requests": "Too many requests. Please try again later.",
	},
	"zh": {
		"health.ok":               "好的",
		"error.invalid":           "请求无效。",
		"error.not_found":         "未找到。",
		"error.expired":           "该评价链接已过期。",
		"error.already_burned":    "该评价链接已被使用。",
		"error.locked_out":        "您的账户暂时无法提交评价。",
		"error.transient":         "出现问题，请重试。",
		"error.unauthorized":      "请重新登录。",
		"error.forbidden":         "不允许此操作。",
		"error.too_many_requests": "请求过多，请稍后再试。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
