package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlertMetadata_Valid(t *testing.T) {
	metadata, err := ParseAlertMetadata([]byte(`{"numberOfAlertsPublished": 4}`))
	require.NoError(t, err)
	assert.Equal(t, 4, metadata.NumberOfAlertsPublished)
}

func TestParseAlertMetadata_Empty(t *testing.T) {
	metadata, err := ParseAlertMetadata(nil)
	assert.Error(t, err)
	assert.Nil(t, metadata)
}

func TestParseAlertMetadata_Malformed(t *testing.T) {
	metadata, err := ParseAlertMetadata([]byte(`{not json`))
	assert.Error(t, err)
	assert.Nil(t, metadata)
}

func TestParseAlertMetadata_MissingCountDefaultsToZero(t *testing.T) {
	metadata, err := ParseAlertMetadata([]byte(`{"resetReason": "watchdog"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, metadata.NumberOfAlertsPublished)
}

func TestRadarKindChannels(t *testing.T) {
	dual := RadarKindDual.Channels(RadarSample{MovementFast: 10, MovementSlow: 20})
	assert.Equal(t, []float64{10, 20}, dual)

	mono := RadarKindMono.Channels(RadarSample{Amplitude: -30})
	assert.Equal(t, []float64{30}, mono)
}
