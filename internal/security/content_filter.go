package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentFilter 清理投递邮件中的活动内容
//
// 正文按 UGC 策略过滤：保留常见排版标签，去掉脚本、事件属性、iframe 等。
// 纯文本正文不受影响。
type ContentFilter struct {
	policy            *bluemonday.Policy
	maliciousPatterns []*regexp.Regexp
}

// NewContentFilter 创建内容过滤器
func NewContentFilter() *ContentFilter {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoReferrerOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &ContentFilter{
		policy: policy,
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
	}
}

// SanitizeBody 返回清理后的正文。不含标签的正文原样返回。
func (cf *ContentFilter) SanitizeBody(body string) string {
	if !strings.ContainsAny(body, "<>") {
		return body
	}
	return cf.policy.Sanitize(body)
}

// SanitizeSubject 主题只保留纯文本
func (cf *ContentFilter) SanitizeSubject(subject string) string {
	if !strings.ContainsAny(subject, "<>") {
		return subject
	}
	return bluemonday.StrictPolicy().Sanitize(subject)
}

// Suspicious 报告正文命中的第一个恶意模式，用于记录日志
func (cf *ContentFilter) Suspicious(content string) (bool, string) {
	for _, pattern := range cf.maliciousPatterns {
		if pattern.MatchString(content) {
			return true, pattern.String()
		}
	}
	return false, ""
}
