package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
)

func TestDecodeBars(t *testing.T) {
	frame := []byte(`{"type":"bar","data":[
		{"s":"AAPL","tf":"5m","t":1709649000000,"o":"189.5","h":190.25,"l":"189.1","c":"190.0","v":1200},
		{"s":"MSFT","t":1709649000000,"o":410,"h":411,"l":409,"c":410.5,"v":800}
	]}`)
	bars, err := decodeBars(frame, models.TF1m)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, models.TF5m, bars[0].Timeframe)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, "190.25", bars[0].High.String())
	assert.NoError(t, bars[0].Validate())

	assert.Equal(t, models.TF1m, bars[1].Timeframe, "falls back to the subscribed timeframe")
}

func TestDecodeIgnoresOtherFrames(t *testing.T) {
	bars, err := decodeBars([]byte(`{"type":"ping"}`), models.TF1m)
	require.NoError(t, err)
	assert.Nil(t, bars)

	_, err = decodeBars([]byte(`not json`), models.TF1m)
	assert.Error(t, err)
}
