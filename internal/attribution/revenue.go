package attribution

import (
	"sort"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// ChannelRevenue is attributed net revenue aggregated for one channel.
type ChannelRevenue struct {
	Channel       domain.Channel `json:"channel"`
	Revenue       float64        `json:"revenue"`
	DonationCount int            `json:"donation_count"`
}

// SummarizeRevenue classifies every donation and aggregates net revenue
// per channel. Refund and cancellation records are skipped: they carry
// no attribution signals and are handled by the rollup path.
func (c *Classifier) SummarizeRevenue(transactions []domain.Transaction) map[domain.Channel]*ChannelRevenue {
	byChannel := make(map[domain.Channel]*ChannelRevenue)

	for _, txn := range transactions {
		if txn.IsRefundLike() {
			continue
		}
		res := c.Classify(txn.Signals)
		if _, ok := byChannel[res.Channel]; !ok {
			byChannel[res.Channel] = &ChannelRevenue{Channel: res.Channel}
		}
		byChannel[res.Channel].Revenue += txn.Net()
		byChannel[res.Channel].DonationCount++
	}

	return byChannel
}

// AttributedRevenue returns the total net revenue linked to a verifiable
// channel (everything except the unattributed bucket).
func AttributedRevenue(byChannel map[domain.Channel]*ChannelRevenue) float64 {
	var total float64
	for ch, rev := range byChannel {
		if ch == domain.ChannelUnattributed {
			continue
		}
		total += rev.Revenue
	}
	return total
}

// SortedChannels returns the channel revenue entries ordered by revenue
// descending, with a stable tiebreak on channel name so output ordering
// is reproducible.
func SortedChannels(byChannel map[domain.Channel]*ChannelRevenue) []ChannelRevenue {
	out := make([]ChannelRevenue, 0, len(byChannel))
	for _, rev := range byChannel {
		out = append(out, *rev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// MatchesFilter reports whether a donation's signals match an active
// campaign/creative filter. Empty filter fields match everything.
// Callers must never apply this to refund or cancellation records;
// excluding refunds by campaign would understate refunds and overstate
// net revenue.
func MatchesFilter(s domain.AttributionSignals, campaignID, creativeID string) bool {
	if campaignID != "" && s.CampaignID != campaignID {
		return false
	}
	if creativeID != "" && s.CreativeID != creativeID {
		return false
	}
	return true
}
