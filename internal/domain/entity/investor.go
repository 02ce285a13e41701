package entity

// KYCType selects which gateway user fields identify the investor
type KYCType string

const (
	KYCTypeLegal   KYCType = "legal"
	KYCTypeNatural KYCType = "natural"
)

// User is the account owning an investor
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"preferred_language"`
}

// KYC holds the identity record of an investor
type KYC struct {
	ID               int64   `json:"id"`
	Type             KYCType `json:"type"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Email            string  `json:"email"`
	Address          string  `json:"address"`
	PaymentAccountID string  `json:"mangopay_relation,omitempty"`
}

// Wallet is an investor wallet held at the payment processor
type Wallet struct {
	ID              int64  `json:"id"`
	Currency        string `json:"currency"`
	PaymentWalletID string `json:"mangopay_wallet_id,omitempty"`
}

// Investor is the party bills are addressed to
type Investor struct {
	ID                    int64    `json:"id"`
	Name                  string   `json:"name"`
	Status                string   `json:"status"`
	TrialPeriodStatus     string   `json:"trial_period_status,omitempty"`
	CommunityFee          bool     `json:"community_fee"`
	AdvancedInvestmentFee bool     `json:"advanced_investment_fee"`
	DistributorName       string   `json:"distributor_name,omitempty"`
	PaymentUserID         string   `json:"mangopay_user_id,omitempty"`
	Owner                 *User    `json:"owner,omitempty"`
	KYC                   *KYC     `json:"kyc,omitempty"`
	Wallets               []Wallet `json:"wallets,omitempty"`
}

// WalletFor returns the investor's wallet in currency, preferring one linked to
// the payment processor. It returns nil when the investor has no such wallet.
func (i *Investor) WalletFor(currency string) *Wallet {
	var unlinked *Wallet
	for idx := range i.Wallets {
		w := &i.Wallets[idx]
		if w.Currency != currency {
			continue
		}
		if w.PaymentWalletID != "" {
			return w
		}
		if unlinked == nil {
			unlinked = w
		}
	}
	return unlinked
}

// OwnerLanguage returns the owner's preferred language or DefaultLanguage
func (i *Investor) OwnerLanguage() string {
	if i.Owner != nil && i.Owner.Language != "" {
		return i.Owner.Language
	}
	return DefaultLanguage
}

// HasTrialPeriod reports whether the investor is in a membership trial
func (i *Investor) HasTrialPeriod() bool {
	return i.TrialPeriodStatus != ""
}
