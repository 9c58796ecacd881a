package cmd

import (
	"testing"

	"mallledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRatios(t *testing.T) {
	ratios, err := parseRatios([]string{"subsidy_pool=0.10", "fund=0.035"})
	require.NoError(t, err)
	assert.Equal(t, "0.1", ratios[model.PoolSubsidy].String())
	assert.Equal(t, "0.035", ratios[model.PoolFund].String())

	_, err = parseRatios([]string{"subsidy_pool"})
	assert.Error(t, err)
	_, err = parseRatios([]string{"subsidy_pool=abc"})
	assert.Error(t, err)
}
