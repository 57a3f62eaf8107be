package catalog

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{Items: []ShortItem{
		{ProductID: "a", Name: "Silk Dress", Available: 2, Requested: 5},
		{ProductID: "b", Name: "Wool Scarf", Available: 0, Requested: 1},
	}}
	assert.Equal(t,
		"insufficient stock: Silk Dress: requested 5, available 2; Wool Scarf: requested 1, available 0",
		err.Error())
}

func TestInsufficientStockErrorSurvivesWrapping(t *testing.T) {
	inner := &InsufficientStockError{Items: []ShortItem{{Name: "Belt", Available: 1, Requested: 3}}}
	wrapped := pkgerrors.Wrap(inner, "checkout rejected")

	var short *InsufficientStockError
	require.ErrorAs(t, wrapped, &short)
	assert.Equal(t, inner.Items, short.Items)
}
