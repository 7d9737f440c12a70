package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinListDecode(t *testing.T) {
	var cl CoinList
	err := cl.Decode("fpi-bank:FPI Bank:rub, bitcoin:Bitcoin:USD")
	require.NoError(t, err)
	require.Len(t, cl, 2)
	assert.Equal(t, CoinSpec{ID: "fpi-bank", Name: "FPI Bank", Currency: "rub"}, cl[0])
	assert.Equal(t, CoinSpec{ID: "bitcoin", Name: "Bitcoin", Currency: "usd"}, cl[1],
		"currency must be lowercased")
}

func TestCoinListDecode_Invalid(t *testing.T) {
	for _, in := range []string{"", "fpi-bank", "fpi-bank:rub", ":name:rub", "fpi-bank::rub"} {
		var cl CoinList
		assert.Error(t, cl.Decode(in), "input %q", in)
	}
}
