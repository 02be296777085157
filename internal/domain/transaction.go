package domain

import (
	"time"
)

// TransactionType enumerates the monetary event kinds the engine consumes.
type TransactionType string

const (
	TransactionDonation     TransactionType = "donation"
	TransactionRefund       TransactionType = "refund"
	TransactionCancellation TransactionType = "cancellation"
)

// Channel enumerates the marketing channels a donation can be attributed to.
type Channel string

const (
	ChannelMeta         Channel = "meta"
	ChannelSMS          Channel = "sms"
	ChannelOther        Channel = "other"
	ChannelUnattributed Channel = "unattributed"
)

// AttributionMethod describes which signal produced an attribution decision.
type AttributionMethod string

const (
	MethodRefCode         AttributionMethod = "refcode"
	MethodClickID         AttributionMethod = "click_id"
	MethodCampaignMapping AttributionMethod = "campaign_mapping"
	MethodUnattributed    AttributionMethod = "unattributed"
)

// AttributionSignals holds every attribution signal a transaction can carry.
// All fields are optional; the zero value means "no signal present".
type AttributionSignals struct {
	Platform        string `json:"platform,omitempty"`          // resolved upstream, e.g. "meta"
	RefCode         string `json:"refcode,omitempty"`           // referral code, e.g. "sms_blast_0412"
	ClickID         string `json:"click_id,omitempty"`          // generic click id
	PlatformClickID string `json:"platform_click_id,omitempty"` // platform pixel id, e.g. fbclid
	CampaignID      string `json:"campaign_id,omitempty"`
	CreativeID      string `json:"creative_id,omitempty"`
	AdID            string `json:"ad_id,omitempty"`
	FormID          string `json:"form_id,omitempty"` // contribution form identifier
}

// Empty reports whether no attribution signal is present at all.
func (s AttributionSignals) Empty() bool {
	return s.Platform == "" && s.RefCode == "" && s.ClickID == "" &&
		s.PlatformClickID == "" && s.CampaignID == "" && s.CreativeID == "" &&
		s.AdID == "" && s.FormID == ""
}

// Transaction represents one monetary event tied to an organization.
// Records are created by the payment processor feed and are immutable
// once ingested; this engine only reads them.
type Transaction struct {
	ID             string             `json:"id" db:"id"`
	OrganizationID string             `json:"organization_id" db:"organization_id"`
	DonorID        string             `json:"donor_id" db:"donor_id"`
	Type           TransactionType    `json:"type" db:"type"`
	GrossAmount    float64            `json:"gross_amount" db:"gross_amount"`
	NetAmount      *float64           `json:"net_amount" db:"net_amount"` // nil → defaults to gross
	OccurredAt     time.Time          `json:"occurred_at" db:"occurred_at"`
	Recurring      bool               `json:"recurring" db:"recurring"`
	Signals        AttributionSignals `json:"signals"`
}

// Net returns the post-fee amount, defaulting to gross when the
// processor did not report a separate net figure.
func (t Transaction) Net() float64 {
	if t.NetAmount != nil {
		return *t.NetAmount
	}
	return t.GrossAmount
}

// Fee returns the processor fee implied by the gross/net difference.
func (t Transaction) Fee() float64 {
	return t.GrossAmount - t.Net()
}

// IsRefundLike reports whether the transaction reduces revenue.
// Refunds and cancellations never carry attribution signals and must
// never be excluded by campaign/creative filters.
func (t Transaction) IsRefundLike() bool {
	return t.Type == TransactionRefund || t.Type == TransactionCancellation
}

// SpendRecord is one day of advertising or messaging spend for a channel.
type SpendRecord struct {
	OrganizationID string  `json:"organization_id" db:"organization_id"`
	Channel        Channel `json:"channel" db:"channel"`
	Date           string  `json:"date" db:"date"` // YYYY-MM-DD, organization-local
	Amount         float64 `json:"amount" db:"amount"`
}
