// Package attribution deterministically assigns each donation to the
// marketing channel that produced it. A donation is attributed only when
// a verifiable signal (referral code, click id, campaign mapping) links
// it to a channel; ambiguous cases land in the visible "unattributed"
// bucket rather than being silently dropped.
package attribution

import (
	"strings"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// Result is the (channel, method) output of one classification.
type Result struct {
	Channel domain.Channel           `json:"channel"`
	Method  domain.AttributionMethod `json:"method"`
}

// defaultRefcodePrefixes maps well-known referral code prefixes to
// channels. Checked only when no explicit refcode mapping matches.
var defaultRefcodePrefixes = map[string]domain.Channel{
	"fb_":   domain.ChannelMeta,
	"ig_":   domain.ChannelMeta,
	"meta_": domain.ChannelMeta,
	"sms_":  domain.ChannelSMS,
	"txt_":  domain.ChannelSMS,
	"text_": domain.ChannelSMS,
}

// defaultFormPrefixes maps known vendor contribution-form signatures to
// channels (e.g. the SMS vendor provisions forms with a fixed prefix).
var defaultFormPrefixes = map[string]domain.Channel{
	"sms-":    domain.ChannelSMS,
	"scaleto": domain.ChannelSMS,
}

// Classifier resolves attribution signals against its mapping tables.
// All tables are fixed at construction time, so Classify is a pure
// function of its input: no clock, no randomness, no external state.
type Classifier struct {
	refcodes  map[string]domain.Channel // exact refcode -> channel
	campaigns map[string]domain.Channel // campaign id -> channel
	forms     map[string]domain.Channel // exact form id -> channel
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRefcodeMap installs an exact refcode-to-channel mapping table,
// typically loaded from per-organization configuration.
func WithRefcodeMap(m map[string]domain.Channel) Option {
	return func(c *Classifier) {
		for k, v := range m {
			c.refcodes[strings.ToLower(k)] = v
		}
	}
}

// WithCampaignMap installs a campaign-id-to-channel mapping table.
func WithCampaignMap(m map[string]domain.Channel) Option {
	return func(c *Classifier) {
		for k, v := range m {
			c.campaigns[k] = v
		}
	}
}

// WithFormMap installs an exact contribution-form-id mapping table.
func WithFormMap(m map[string]domain.Channel) Option {
	return func(c *Classifier) {
		for k, v := range m {
			c.forms[strings.ToLower(k)] = v
		}
	}
}

// NewClassifier creates a Classifier with the given mapping overrides.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		refcodes:  make(map[string]domain.Channel),
		campaigns: make(map[string]domain.Channel),
		forms:     make(map[string]domain.Channel),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assigns exactly one channel and method to a signal set.
// Total function: every input maps to an output, including the all-empty
// input, which classifies as unattributed/unattributed.
//
// Precedence, highest to lowest:
//  1. explicit platform field resolved upstream
//  2. referral-code mapping that resolves to a known channel
//  3. recognized click / pixel identifier
//  4. contribution-form signature heuristic
//  5. none of the above -> unattributed
func (c *Classifier) Classify(s domain.AttributionSignals) Result {
	// 1. Platform already resolved upstream.
	if ch, ok := normalizePlatform(s.Platform); ok {
		return Result{Channel: ch, Method: domain.MethodCampaignMapping}
	}

	// Campaign/creative/ad mapping counts as an explicit platform link:
	// a record with any of these is never unattributed.
	if s.CampaignID != "" || s.CreativeID != "" || s.AdID != "" {
		if ch, ok := c.campaigns[s.CampaignID]; ok {
			return Result{Channel: ch, Method: domain.MethodCampaignMapping}
		}
		return Result{Channel: domain.ChannelOther, Method: domain.MethodCampaignMapping}
	}

	// 2. Referral code mapping.
	if s.RefCode != "" {
		return Result{Channel: c.channelForRefcode(s.RefCode), Method: domain.MethodRefCode}
	}

	// 3. Click / pixel identifiers.
	if s.PlatformClickID != "" {
		// Platform pixel ids (fbclid-style) are issued by Meta's pixel.
		return Result{Channel: domain.ChannelMeta, Method: domain.MethodClickID}
	}
	if s.ClickID != "" {
		return Result{Channel: channelForClickID(s.ClickID), Method: domain.MethodClickID}
	}

	// 4. Contribution-form heuristic.
	if s.FormID != "" {
		if ch, ok := c.channelForForm(s.FormID); ok {
			return Result{Channel: ch, Method: domain.MethodCampaignMapping}
		}
	}

	// 5. No verifiable signal.
	return Result{Channel: domain.ChannelUnattributed, Method: domain.MethodUnattributed}
}

func (c *Classifier) channelForRefcode(code string) domain.Channel {
	code = strings.ToLower(strings.TrimSpace(code))
	if ch, ok := c.refcodes[code]; ok {
		return ch
	}
	for prefix, ch := range defaultRefcodePrefixes {
		if strings.HasPrefix(code, prefix) {
			return ch
		}
	}
	// A referral code is still a verifiable signal even when we can't
	// resolve its platform.
	return domain.ChannelOther
}

func (c *Classifier) channelForForm(formID string) (domain.Channel, bool) {
	formID = strings.ToLower(strings.TrimSpace(formID))
	if ch, ok := c.forms[formID]; ok {
		return ch, true
	}
	for prefix, ch := range defaultFormPrefixes {
		if strings.HasPrefix(formID, prefix) {
			return ch, true
		}
	}
	return "", false
}

// channelForClickID infers a channel from a raw click id. Meta click ids
// carry a recognizable "fb" prefix; anything else is a verifiable but
// unresolvable click signal.
func channelForClickID(clickID string) domain.Channel {
	lower := strings.ToLower(clickID)
	if strings.HasPrefix(lower, "fb") || strings.HasPrefix(lower, "ig") {
		return domain.ChannelMeta
	}
	return domain.ChannelOther
}

// normalizePlatform maps an upstream-resolved platform label to a channel.
func normalizePlatform(platform string) (domain.Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "meta", "facebook", "instagram", "fb":
		return domain.ChannelMeta, true
	case "sms", "text":
		return domain.ChannelSMS, true
	case "":
		return "", false
	default:
		return domain.ChannelOther, true
	}
}
