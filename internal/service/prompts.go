package service

import (
	"fmt"
	"lawchat-go/internal/model"
	"lawchat-go/pkg/es"
	"sort"
	"strings"
)

// 提示模板版本号。修改下列任何模板时必须递增，旧缓存键随之失效。
const (
	ConsultPromptVersion = "consult-v1"
	DraftPromptVersion   = "draft-v1"
)

const consultantPersona = `You are a knowledgeable Philippine legal consultant. Give accurate, practical guidance based on Philippine laws, codes and regulations, citing specific provisions when applicable.
Explain legal terms in plain language and suggest concrete next steps.
Clarify that you provide general legal information, not formal legal representation, and recommend a licensed attorney for specific cases.
If the user's situation would benefit from a legal document such as a demand letter or affidavit, you may offer to help generate one.`

const classifierPersona = `You are an intent classifier for a Philippine legal assistant.
Classify the user's current message into exactly one intent:
- consultation: the user wants legal advice, an explanation or guidance.
- generation: the user wants a legal document created, drafted or written.
- both: the message asks for an explanation AND for a document.
- info_gathering: the user is supplying details (names, addresses, amounts, dates) requested by an earlier document follow-up question.
Consider the conversation context: if the previous assistant message asked for document details and the user is now providing them, classify as info_gathering.
Respond with a single JSON object and nothing else:
{"intent": "<consultation|generation|both|info_gathering>", "document_type": "<%s|none>", "confidence": <0.0-1.0>}`

const draftPersona = `You are a Philippine legal document expert. Draft complete, professional documents in formal legal language that follow Philippine legal standards.
Include every necessary section and clause and format the document with clear headers.
Use only the details provided. Where non-critical information is missing, insert a placeholder of the form [MISSING: description].`

// ClassifierPersona 返回分类器的系统提示，列出当前支持的文书类型。
func ClassifierPersona() string {
	types := make([]string, 0)
	for _, spec := range model.SupportedDocuments() {
		types = append(types, string(spec.Type))
	}
	return fmt.Sprintf(classifierPersona, strings.Join(types, "|"))
}

// FormatHistory 将消息渲染为 "User: ..." / "Assistant: ..." 行。
func FormatHistory(messages []model.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch m.Role {
		case model.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func buildClassificationPrompt(message string, window []model.Message) string {
	var b strings.Builder
	if len(window) > 0 {
		b.WriteString("Recent conversation context:\n")
		b.WriteString(FormatHistory(window))
		b.WriteString("\n\n")
	}
	b.WriteString("Current message: ")
	b.WriteString(message)
	return b.String()
}

func buildConsultationPrompt(message string, history []model.Message) string {
	if len(history) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString("## CONVERSATION HISTORY (for context):\n")
	b.WriteString(FormatHistory(history))
	b.WriteString("\n\n---\n\n## CURRENT QUESTION:\n")
	b.WriteString(message)
	b.WriteString("\n\nProvide a response that maintains conversational continuity and builds upon the previous discussion.")
	return b.String()
}

// buildConsultationPersona 在系统提示后附加检索到的参考资料。
func buildConsultationPersona(p PromptConfig, refs []es.Reference, searched bool) string {
	var b strings.Builder
	b.WriteString(consultantPersona)
	if p.Rules != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Rules)
	}
	if !searched {
		return b.String()
	}
	b.WriteString("\n\n")
	b.WriteString(p.RefStart)
	b.WriteString("\n")
	if len(refs) == 0 {
		b.WriteString(p.NoResultText)
		b.WriteString("\n")
	}
	for i, ref := range refs {
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, ref.Title, ref.Content)
	}
	b.WriteString(p.RefEnd)
	return b.String()
}

func buildDraftPrompt(spec model.DocumentSpec, message string, fields map[string]string, history []model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a professional %s.\n\nUser's request: %q\n", spec.Title, message)
	if len(history) > 0 {
		b.WriteString("\nPrevious conversation:\n")
		b.WriteString(FormatHistory(history))
		b.WriteString("\n")
	}
	b.WriteString("\nDocument details:\n")
	for _, f := range spec.Fields {
		if v := strings.TrimSpace(fields[f.Name]); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Label, v)
		}
	}
	b.WriteString("\nGenerate the document now:")
	return b.String()
}

// followUpQuestion 列出仍缺失的必填字段。完全由本地生成，不调用生成服务。
func followUpQuestion(spec model.DocumentSpec, fields map[string]string, missing []model.DocumentField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I can help you prepare a %s. ", spec.Title)
	if len(fields) > 0 {
		b.WriteString("So far I have:\n")
		for _, f := range spec.Fields {
			if v := strings.TrimSpace(fields[f.Name]); v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", f.Label, v)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("Please provide the following details:\n")
	for _, f := range missing {
		fmt.Fprintf(&b, "- %s (%s)\n", f.Label, f.Name)
	}
	b.WriteString("\nYou can answer in the form \"field: value\", one per line.")
	return b.String()
}

// documentTypeQuestion 在无法确定文书类型时返回静态问题。
func documentTypeQuestion() string {
	specs := model.SupportedDocuments()
	titles := make([]string, 0, len(specs))
	for _, spec := range specs {
		titles = append(titles, spec.Title)
	}
	sort.Strings(titles)
	var b strings.Builder
	b.WriteString("Which document would you like me to prepare? I can currently draft:\n")
	for _, t := range titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	return strings.TrimRight(b.String(), "\n")
}
