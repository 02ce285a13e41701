package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/domain/entity"
)

// membership types shown in the membership cash call email
const (
	membershipDistributor   = "advanced_investment_distributor"
	membershipAdvancedOnly  = "advanced_investment_only"
	membershipCommunityOnly = "community_only"
	membershipFull          = "full_membership"
)

const (
	membershipEndDateLayout   = "02/01/2006"
	defaultEmailRecipientName = "investor"
)

// SendEmail emails the cash call with its invoice to the investor's owner and
// stamps last_sent on the cash call and its bill
func (s *cashCallService) SendEmail(ctx context.Context, cc *entity.CashCall) error {
	bill, err := s.requireBill(ctx, cc)
	if err != nil {
		return err
	}
	investor, err := s.bills.Investor(ctx, bill)
	if err != nil {
		return err
	}
	if investor == nil || investor.Owner == nil {
		return ErrNoOwner
	}
	if cc.WireReference() == "" {
		return ErrNoWireReference
	}
	if bill.File == "" {
		return fmt.Errorf("%w: bill %d", ErrNoDocument, bill.ID)
	}

	investment, err := s.bills.Investment(ctx, bill)
	if err != nil {
		return err
	}

	content, err := s.storage.Read(ctx, bill.File)
	if err != nil {
		return fmt.Errorf("failed to read document of bill %d: %w", bill.ID, err)
	}

	templateID := bill.TemplateID
	if templateID <= 0 {
		templateID = s.settings.defaultTemplateID()
	}

	msg := port.EmailMessage{
		To: []port.EmailRecipient{{
			Email: investor.Owner.Email,
			Name:  investor.Owner.FirstName,
		}},
		CC:          s.ccRecipients(bill),
		TemplateID:  templateID,
		Params:      s.emailParams(bill, cc, investor, investment),
		Attachments: []port.EmailAttachment{{Name: attachmentName(bill.File), Content: content}},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send cash call %d: %w", cc.ID, err)
	}

	sentAt := s.now()
	if err := s.repos.CashCalls.UpdateLastSent(ctx, cc.ID, sentAt); err != nil {
		return fmt.Errorf("failed to update last_sent of cash call %d: %w", cc.ID, err)
	}
	cc.LastSent = &sentAt
	if err := s.bills.TouchLastSent(ctx, bill, sentAt); err != nil {
		return err
	}

	s.logger.Info("Cash call email sent",
		zap.Int64("cashcall_id", cc.ID),
		zap.Int64("bill_id", bill.ID),
		zap.Int64("template_id", templateID),
		zap.Int("cc", len(msg.CC)))
	return nil
}

func (s *cashCallService) emailParams(
	bill *entity.Bill,
	cc *entity.CashCall,
	investor *entity.Investor,
	investment *entity.Investment,
) map[string]interface{} {
	userName := bill.InvestorName
	if userName == "" {
		userName = defaultEmailRecipientName
	}
	params := map[string]interface{}{
		"user_name":              userName,
		"total_committed_amount": cc.CommittedAmount.StringFixed(2),
		"total_fees_amount":      cc.FeesAmount.StringFixed(2),
		"transferred_amount":     cc.TotalAmount().StringFixed(2),
		"wire_reference":         cc.WireReference(),
	}

	switch bill.Type {
	case entity.BillTypeManagementFees:
		if investment != nil {
			params["investments"] = []map[string]interface{}{{
				"fundraising_name": investment.Fundraising.Name,
				"committed_amount": investment.CommittedAmount.StringFixed(2),
				"total_fees":       bill.FeesAmountDue.StringFixed(2),
			}}
		}
	case entity.BillTypeUpfrontFees:
		if investment != nil {
			params["startup_name"] = investment.Fundraising.StartupName
		}
	case entity.BillTypeMembershipFees:
		params["end_date"] = s.now().Add(s.settings.PaymentTerm).Format(membershipEndDateLayout)
		params["membership_type"] = membershipType(investor)
		if investor.DistributorName != "" {
			params["distributor_name"] = investor.DistributorName
		}
	}
	return params
}

func membershipType(investor *entity.Investor) string {
	switch {
	case investor.DistributorName != "":
		return membershipDistributor
	case investor.AdvancedInvestmentFee && !investor.CommunityFee:
		return membershipAdvancedOnly
	case investor.CommunityFee && !investor.AdvancedInvestmentFee:
		return membershipCommunityOnly
	}
	return membershipFull
}

// ccRecipients merges the configured copies with the bill's own, dropping duplicates
func (s *cashCallService) ccRecipients(bill *entity.Bill) []port.EmailRecipient {
	seen := make(map[string]bool)
	var out []port.EmailRecipient
	for _, list := range [][]string{s.settings.CCEmails, bill.CCEmails} {
		for _, email := range list {
			email = strings.TrimSpace(email)
			key := strings.ToLower(email)
			if email == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, port.EmailRecipient{Email: email})
		}
	}
	return out
}
