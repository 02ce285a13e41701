package document

import "strings"

// labels are the fixed texts printed on an invoice
type labels struct {
	Invoice       string
	CreditNote    string
	Number        string
	Date          string
	DueDate       string
	BilledTo      string
	Description   string
	Rate          string
	Amount        string
	Community     string
	Advanced      string
	Subtotal      string
	VAT           string
	Total         string
	WireReference string
	Upfront       string
	Management    string
	Membership    string
	Rhapsody      string
}

var invoiceLabels = map[string]labels{
	"EN": {
		Invoice:       "INVOICE",
		CreditNote:    "CREDIT NOTE",
		Number:        "Invoice number",
		Date:          "Invoice date",
		DueDate:       "Due date",
		BilledTo:      "Billed to",
		Description:   "Description",
		Rate:          "Rate",
		Amount:        "Amount",
		Community:     "Community membership",
		Advanced:      "Advanced investment membership",
		Subtotal:      "Subtotal",
		VAT:           "VAT",
		Total:         "Total",
		WireReference: "Wire reference",
		Upfront:       "Upfront fees",
		Management:    "Management fees",
		Membership:    "Membership fees",
		Rhapsody:      "Rhapsody fees",
	},
	"FR": {
		Invoice:       "FACTURE",
		CreditNote:    "AVOIR",
		Number:        "Numéro de facture",
		Date:          "Date de facture",
		DueDate:       "Date d'échéance",
		BilledTo:      "Facturé à",
		Description:   "Description",
		Rate:          "Taux",
		Amount:        "Montant",
		Community:     "Adhésion communauté",
		Advanced:      "Adhésion investissement avancé",
		Subtotal:      "Sous-total",
		VAT:           "TVA",
		Total:         "Total",
		WireReference: "Référence du virement",
		Upfront:       "Frais d'entrée",
		Management:    "Frais de gestion",
		Membership:    "Frais d'adhésion",
		Rhapsody:      "Frais Rhapsody",
	},
}

// labelsFor falls back to English for unknown languages
func labelsFor(language string) labels {
	if l, ok := invoiceLabels[strings.ToUpper(language)]; ok {
		return l
	}
	return invoiceLabels["EN"]
}
