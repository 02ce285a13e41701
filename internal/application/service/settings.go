package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/investment-billing/internal/domain/entity"
)

// DefaultTemplateID is the email template used when a bill has none
const DefaultTemplateID int64 = 364

// Settings is the immutable billing configuration handed to the services
type Settings struct {
	// DefaultTemplateID is used when a bill carries no template id
	DefaultTemplateID int64
	// TemplateIDs maps bill type then language to an email template id
	TemplateIDs map[entity.BillType]map[string]int64
	// CCEmails are copied on every cash call email
	CCEmails []string
	// CommunityPreVAT is the community membership fee before VAT
	CommunityPreVAT decimal.Decimal
	// VATRate is the VAT percentage applied to the community membership fee
	VATRate decimal.Decimal
	// PaymentTerm is added to the invoice date to get the due date of membership and management invoices
	PaymentTerm time.Duration
	// DocumentDir is the storage prefix for generated invoices
	DocumentDir string
}

// DefaultSettings returns the settings used when configuration leaves values empty
func DefaultSettings() Settings {
	return Settings{
		DefaultTemplateID: DefaultTemplateID,
		TemplateIDs:       map[entity.BillType]map[string]int64{},
		CommunityPreVAT:   decimal.NewFromInt(200),
		VATRate:           decimal.NewFromInt(20),
		PaymentTerm:       30 * 24 * time.Hour,
		DocumentDir:       "bills",
	}
}

// TemplateID returns the template for a bill type and language, falling back to English then the default
func (s Settings) TemplateID(billType entity.BillType, language string) int64 {
	byLanguage := s.TemplateIDs[billType]
	if id, ok := byLanguage[language]; ok && id > 0 {
		return id
	}
	if id, ok := byLanguage[entity.DefaultLanguage]; ok && id > 0 {
		return id
	}
	return s.defaultTemplateID()
}

func (s Settings) defaultTemplateID() int64 {
	if s.DefaultTemplateID > 0 {
		return s.DefaultTemplateID
	}
	return DefaultTemplateID
}
