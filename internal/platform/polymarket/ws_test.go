package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarketMessageArray(t *testing.T) {
	raw := []byte(`[
		{"event_type":"book","asset_id":"111","market":"0xcond","asks":[{"price":"0.45","size":"100"}],"bids":[],"timestamp":"1700000000000"},
		{"event_type":"last_trade_price","asset_id":"111"}
	]`)
	books, changes := parseMarketMessage(raw)
	require.Len(t, books, 1)
	assert.Empty(t, changes)
	assert.Equal(t, "111", books[0].AssetID)
	assert.Equal(t, "0.45", books[0].Asks[0].Price)
}

func TestParseMarketMessagePriceChange(t *testing.T) {
	raw := []byte(`{"event_type":"price_change","market":"0xcond","timestamp":"1700000000001",
		"price_changes":[{"asset_id":"222","side":"SELL","price":"0.52","size":"40","best_bid":"0.50","best_ask":"0.52"}]}`)
	books, changes := parseMarketMessage(raw)
	assert.Empty(t, books)
	require.Len(t, changes, 1)
	assert.Equal(t, "0.52", changes[0].Changes[0].BestAsk)
}

func TestParseMarketMessageIgnoresGarbage(t *testing.T) {
	for _, raw := range []string{"", "PONG", `{"event_type":"book"}`, `[1,2]`} {
		books, changes := parseMarketMessage([]byte(raw))
		assert.Empty(t, books, raw)
		assert.Empty(t, changes, raw)
	}
}
