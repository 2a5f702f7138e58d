package service

import (
	"lawchat-go/internal/model"
	"regexp"
	"strings"
)

// FieldExtractor 从用户消息中抽取文书字段。抽取是尽力而为的，可替换为其他策略。
type FieldExtractor interface {
	Extract(spec model.DocumentSpec, message string) map[string]string
}

var (
	labelPattern          = regexp.MustCompile(`(?i)(?:^|[\n;,.!?])\s*([a-z][a-z _]{0,30}?)\s*:`)
	prefixedAmountPattern = regexp.MustCompile(`(?i)(\bPHP|\bUSD|₱|\$)\s?(\d[\d,]*(?:\.\d{1,2})?)`)
	suffixedAmountPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d{1,2})?)\s*(PHP|USD|pesos?|dollars?)\b`)
	fromNamePattern       = regexp.MustCompile(`\b(?:[Ff]rom|[Ss]ender|[Bb]y)[ \t]+([A-Z][\w.'-]*(?:[ \t]+[A-Z][\w.'-]*)*)`)
	toNamePattern         = regexp.MustCompile(`\b(?:[Tt]o|[Rr]ecipient|[Ff]or)[ \t]+([A-Z][\w.'-]*(?:[ \t]+[A-Z][\w.'-]*)*)`)
)

// HeuristicExtractor 基于规则的字段抽取：
// 标注形式 "label: value"、带货币标记的金额、"from/by X" 与 "to/for Y" 形式的当事人姓名。
type HeuristicExtractor struct{}

// Extract 返回识别出的字段；标注形式优先于其他规则。
func (HeuristicExtractor) Extract(spec model.DocumentSpec, message string) map[string]string {
	fields := make(map[string]string)
	extractLabelled(spec, message, fields)

	if spec.AmountField != "" && fields[spec.AmountField] == "" {
		if amount, currency := extractAmount(message); amount != "" {
			fields[spec.AmountField] = amount
			if spec.CurrencyField != "" && fields[spec.CurrencyField] == "" {
				fields[spec.CurrencyField] = currency
			}
		}
	}
	if spec.FromField != "" && fields[spec.FromField] == "" {
		if m := fromNamePattern.FindStringSubmatch(message); m != nil {
			fields[spec.FromField] = strings.TrimRight(m[1], ".")
		}
	}
	if spec.ToField != "" && fields[spec.ToField] == "" {
		if m := toNamePattern.FindStringSubmatch(message); m != nil {
			fields[spec.ToField] = strings.TrimRight(m[1], ".")
		}
	}
	return fields
}

func extractLabelled(spec model.DocumentSpec, message string, fields map[string]string) {
	matches := labelPattern.FindAllStringSubmatchIndex(message, -1)
	for i, m := range matches {
		label := normalizeLabel(message[m[2]:m[3]])
		end := len(message)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		value := strings.Trim(message[m[1]:end], " \t\r\n,;")
		if value == "" {
			continue
		}
		if name := fieldForLabel(spec, label); name != "" {
			fields[name] = value
		}
	}
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.Join(strings.Fields(strings.ReplaceAll(label, "_", " ")), " ")
}

func fieldForLabel(spec model.DocumentSpec, label string) string {
	for _, f := range spec.Fields {
		if label == normalizeLabel(f.Name) || label == normalizeLabel(f.Label) {
			return f.Name
		}
		for _, alias := range f.Aliases {
			if label == alias {
				return f.Name
			}
		}
	}
	return ""
}

func extractAmount(message string) (amount, currency string) {
	if m := prefixedAmountPattern.FindStringSubmatch(message); m != nil {
		return m[2], normalizeCurrency(m[1])
	}
	if m := suffixedAmountPattern.FindStringSubmatch(message); m != nil {
		return m[1], normalizeCurrency(m[2])
	}
	return "", ""
}

func normalizeCurrency(raw string) string {
	switch strings.ToLower(raw) {
	case "$", "usd", "dollar", "dollars":
		return "USD"
	default:
		return "PHP"
	}
}
