package model

import (
	"sort"
	"strings"
)

// DocumentType 标识可起草的法律文书类型。
type DocumentType string

const (
	DocDemandLetter       DocumentType = "demand_letter"
	DocAffidavitOfLoss    DocumentType = "affidavit_of_loss"
	DocServiceAgreement   DocumentType = "service_agreement"
	DocEmploymentContract DocumentType = "employment_contract"
	DocSalesPromoPermit   DocumentType = "sales_promotion_permit"
)

// DocumentField 描述文书所需的一个字段。Aliases 用于识别 "label: value" 形式的输入。
type DocumentField struct {
	Name     string
	Label    string
	Required bool
	Aliases  []string
}

// DocumentSpec 描述一种文书：标题、识别关键词、字段，以及启发式抽取时的角色映射。
type DocumentSpec struct {
	Type     DocumentType
	Title    string
	Keywords []string
	Fields   []DocumentField

	// 以下为空表示该文书不支持对应的启发式抽取
	FromField     string // "from X" / "by X"
	ToField       string // "to Y" / "for Y"
	AmountField   string
	CurrencyField string
}

var documentRegistry = map[DocumentType]DocumentSpec{
	DocDemandLetter: {
		Type:     DocDemandLetter,
		Title:    "Demand Letter",
		Keywords: []string{"demand letter", "letter of demand", "collection letter", "sulat ng paniningil"},
		Fields: []DocumentField{
			{Name: "sender_name", Label: "Sender", Required: true, Aliases: []string{"sender", "sender name", "from"}},
			{Name: "recipient_name", Label: "Recipient", Required: true, Aliases: []string{"recipient", "recipient name", "to", "debtor"}},
			{Name: "amount", Label: "Amount", Required: true, Aliases: []string{"amount", "amount due", "sum"}},
			{Name: "currency", Label: "Currency", Aliases: []string{"currency"}},
			{Name: "description", Label: "Description of the claim", Aliases: []string{"description", "reason", "subject"}},
			{Name: "due_date", Label: "Payment deadline", Aliases: []string{"due date", "deadline"}},
		},
		FromField:     "sender_name",
		ToField:       "recipient_name",
		AmountField:   "amount",
		CurrencyField: "currency",
	},
	DocAffidavitOfLoss: {
		Type:     DocAffidavitOfLoss,
		Title:    "Affidavit of Loss",
		Keywords: []string{"affidavit of loss", "lost id", "nawalan ng id"},
		Fields: []DocumentField{
			{Name: "affiant_name", Label: "Affiant name", Required: true, Aliases: []string{"affiant", "name", "affiant name"}},
			{Name: "address", Label: "Address", Required: true, Aliases: []string{"address"}},
			{Name: "item_type", Label: "Lost item", Required: true, Aliases: []string{"item", "lost item", "item type"}},
			{Name: "circumstances", Label: "How the item was lost", Required: true, Aliases: []string{"circumstances", "how"}},
			{Name: "loss_location", Label: "Place of loss", Aliases: []string{"location", "place"}},
		},
	},
	DocServiceAgreement: {
		Type:     DocServiceAgreement,
		Title:    "Service Agreement",
		Keywords: []string{"service agreement", "services agreement", "service contract"},
		Fields: []DocumentField{
			{Name: "provider_name", Label: "Service provider", Required: true, Aliases: []string{"provider", "service provider"}},
			{Name: "client_name", Label: "Client", Required: true, Aliases: []string{"client", "customer"}},
			{Name: "services", Label: "Services", Required: true, Aliases: []string{"services", "scope"}},
			{Name: "fee", Label: "Fee", Required: true, Aliases: []string{"fee", "price", "amount"}},
			{Name: "currency", Label: "Currency", Aliases: []string{"currency"}},
			{Name: "start_date", Label: "Start date", Aliases: []string{"start date", "start"}},
		},
		FromField:     "provider_name",
		ToField:       "client_name",
		AmountField:   "fee",
		CurrencyField: "currency",
	},
	DocEmploymentContract: {
		Type:     DocEmploymentContract,
		Title:    "Employment Contract",
		Keywords: []string{"employment contract", "contract of employment", "job contract"},
		Fields: []DocumentField{
			{Name: "employer_name", Label: "Employer", Required: true, Aliases: []string{"employer", "company"}},
			{Name: "employee_name", Label: "Employee", Required: true, Aliases: []string{"employee"}},
			{Name: "position", Label: "Position", Required: true, Aliases: []string{"position", "job title", "role"}},
			{Name: "salary", Label: "Salary", Required: true, Aliases: []string{"salary", "compensation", "pay"}},
			{Name: "currency", Label: "Currency", Aliases: []string{"currency"}},
			{Name: "start_date", Label: "Start date", Aliases: []string{"start date", "start"}},
		},
		FromField:     "employer_name",
		ToField:       "employee_name",
		AmountField:   "salary",
		CurrencyField: "currency",
	},
	// DTI 促销许可申请，嵌套的表单结构按 "label: value" 展平为单层字段
	DocSalesPromoPermit: {
		Type:     DocSalesPromoPermit,
		Title:    "Sales Promotion Permit Application",
		Keywords: []string{"sales promotion permit", "sales promo permit", "promo permit", "dti permit", "raffle permit"},
		Fields: []DocumentField{
			{Name: "promo_title", Label: "Promo title", Required: true, Aliases: []string{"promo title", "promo name", "title"}},
			{Name: "sponsor_name", Label: "Sponsor company", Required: true, Aliases: []string{"sponsor", "sponsor name", "company"}},
			{Name: "sponsor_address", Label: "Sponsor address", Required: true, Aliases: []string{"sponsor address", "address"}},
			{Name: "representative_name", Label: "Authorized representative", Required: true, Aliases: []string{"representative", "authorized representative"}},
			{Name: "representative_designation", Label: "Representative designation", Required: true, Aliases: []string{"designation"}},
			{Name: "promo_start_date", Label: "Promo start date", Required: true, Aliases: []string{"start date", "start", "promo start"}},
			{Name: "promo_end_date", Label: "Promo end date", Required: true, Aliases: []string{"end date", "end", "promo end"}},
			{Name: "promo_type", Label: "Promo type (discount, premium, raffle, games, contests, redemption)", Required: true, Aliases: []string{"promo type", "type"}},
			{Name: "coverage", Label: "Coverage (NCR or nationwide)", Required: true, Aliases: []string{"coverage", "area"}},
			{Name: "participating_establishments", Label: "Participating establishments", Required: true, Aliases: []string{"participating establishments", "establishments", "outlets"}},
			{Name: "products_covered", Label: "Products covered", Required: true, Aliases: []string{"products covered", "products", "brand"}},
			{Name: "sponsor_telephone", Label: "Sponsor telephone", Aliases: []string{"telephone", "phone"}},
			{Name: "advertising_agency", Label: "Advertising agency", Aliases: []string{"advertising agency", "agency"}},
			{Name: "application_date", Label: "Application date", Aliases: []string{"application date", "date"}},
		},
	},
}

// LookupDocument 返回文书定义。
func LookupDocument(t DocumentType) (DocumentSpec, bool) {
	spec, ok := documentRegistry[t]
	return spec, ok
}

// SupportedDocuments 按类型名排序返回全部文书定义。
func SupportedDocuments() []DocumentSpec {
	specs := make([]DocumentSpec, 0, len(documentRegistry))
	for _, spec := range documentRegistry {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ParseDocumentType 规范化分类器返回的文书类型（"Demand Letter"、"demand-letter" 等）。
// 未知类型返回空字符串。
func ParseDocumentType(raw string) DocumentType {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if _, ok := documentRegistry[DocumentType(norm)]; ok {
		return DocumentType(norm)
	}
	return ""
}

// DetectDocumentType 通过关键词从消息中识别文书类型。
func DetectDocumentType(message string) DocumentType {
	lower := strings.ToLower(message)
	for _, spec := range SupportedDocuments() {
		for _, kw := range spec.Keywords {
			if strings.Contains(lower, kw) {
				return spec.Type
			}
		}
	}
	return ""
}

// MissingFields 返回尚未提供的必填字段，顺序与定义一致。
func (s DocumentSpec) MissingFields(fields map[string]string) []DocumentField {
	var missing []DocumentField
	for _, f := range s.Fields {
		if f.Required && strings.TrimSpace(fields[f.Name]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Field 按名称查找字段定义。
func (s DocumentSpec) Field(name string) (DocumentField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return DocumentField{}, false
}
