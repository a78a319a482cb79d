package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeState(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantNil      bool
		wantType     string
		wantStatuses map[string]string
	}{
		{
			name:         "clean json",
			raw:          `{"collateralType":"real_estate","itemStatuses":{"appraisal":"complete"},"version":2}`,
			wantType:     "real_estate",
			wantStatuses: map[string]string{"appraisal": "complete"},
		},
		{
			name:         "wrapped in paragraph tags",
			raw:          `<p>{"collateralType":"equipment","itemStatuses":{"title":"pending"}}</p>`,
			wantType:     "equipment",
			wantStatuses: map[string]string{"title": "pending"},
		},
		{
			name:         "html entities for quotes",
			raw:          `{&quot;collateralType&quot;:&quot;vehicle&quot;,&quot;itemStatuses&quot;:{&quot;lien&quot;:&quot;n/a&quot;}}`,
			wantType:     "vehicle",
			wantStatuses: map[string]string{"lien": "n/a"},
		},
		{
			name:         "tags and entities combined",
			raw:          `<div><span>{&#34;collateralType&#34;:&#34;inventory&#34;,&#34;itemStatuses&#34;:{}}</span></div>`,
			wantType:     "inventory",
			wantStatuses: map[string]string{},
		},
		{
			name:         "nbsp padding",
			raw:          `{&quot;collateralType&quot;:&quot;ar&quot;,&nbsp;&quot;itemStatuses&quot;:{}}`,
			wantType:     "ar",
			wantStatuses: map[string]string{},
		},
		{
			name:    "unrecoverable garbage",
			raw:     `<p>checklist pending review</p>`,
			wantNil: true,
		},
		{
			name:    "empty string",
			raw:     "",
			wantNil: true,
		},
		{
			name:    "truncated json",
			raw:     `{"collateralType":"real_est`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DecodeState(tt.raw)
			if tt.wantNil {
				assert.Nil(t, state)
				return
			}
			require.NotNil(t, state)
			require.NotNil(t, state.CollateralType)
			assert.Equal(t, tt.wantType, *state.CollateralType)
			assert.Equal(t, tt.wantStatuses, state.ItemStatuses)
		})
	}
}

func TestDecodeState_NullCollateralType(t *testing.T) {
	state := DecodeState(`{"collateralType":null,"itemStatuses":{"ucc_filing":"pending"}}`)
	require.NotNil(t, state)
	assert.Nil(t, state.CollateralType)
	assert.Equal(t, "pending", state.ItemStatuses["ucc_filing"])
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	collateral := "real_estate"
	original := &State{
		CollateralType: &collateral,
		ItemStatuses:   map[string]string{"appraisal": "complete", "survey": "pending"},
		UpdatedAt:      "2026-08-29T10:00:00Z",
		Version:        3,
	}

	encoded, err := EncodeState(original)
	require.NoError(t, err)

	decoded := DecodeState(encoded)
	require.NotNil(t, decoded)
	assert.Equal(t, original, decoded)
}
