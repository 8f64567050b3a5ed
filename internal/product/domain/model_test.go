package domain

import (
	"encoding/json"
	"testing"

	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRemaining(t *testing.T) {
	cases := []struct {
		name     string
		metadata datatypes.JSONMap
		want     int64
		wantErr  error
	}{
		{name: "json number", metadata: datatypes.JSONMap{"remaining": float64(1000)}, want: 1000},
		{name: "provider string", metadata: datatypes.JSONMap{"remaining": " 42 "}, want: 42},
		{name: "decoder number", metadata: datatypes.JSONMap{"remaining": json.Number("7")}, want: 7},
		{name: "missing", metadata: datatypes.JSONMap{"type": "carbon_credit"}, wantErr: ErrInventoryMissing},
		{name: "nil metadata", metadata: nil, wantErr: ErrInventoryMissing},
		{name: "fraction", metadata: datatypes.JSONMap{"remaining": 1.5}, wantErr: ErrMalformedDocument},
		{name: "garbage", metadata: datatypes.JSONMap{"remaining": "lots"}, wantErr: ErrMalformedDocument},
		{name: "wrong type", metadata: datatypes.JSONMap{"remaining": []any{1}}, wantErr: ErrMalformedDocument},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Product{Metadata: tc.metadata}.Remaining()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToResponseDefaultsImages(t *testing.T) {
	resp := ToResponse(Product{ID: "prod_1", Metadata: datatypes.JSONMap{"remaining": float64(3)}})
	assert.Equal(t, []string{}, resp.Images)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, int64(3), *resp.Remaining)
	assert.Empty(t, resp.Prices)
}

func TestOneTimePriceSkipsInactiveAndRecurring(t *testing.T) {
	monthly := "month"
	p := Product{Prices: []pricedomain.Price{
		{ID: "price_old", UnitAmount: 400, Active: false},
		{ID: "price_sub", UnitAmount: 900, Active: true, RecurringInterval: &monthly},
		{ID: "price_now", UnitAmount: 500, Active: true},
	}}

	price := p.OneTimePrice()
	require.NotNil(t, price)
	assert.Equal(t, "price_now", price.ID)

	assert.Nil(t, Product{Prices: p.Prices[:2]}.OneTimePrice())
}
