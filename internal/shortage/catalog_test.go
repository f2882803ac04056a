package shortage_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Explode(t *testing.T) {
	cat := exampleCatalog()

	reqs, err := cat.Explode("P1", dec("10"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "C1", reqs[0].ComponentPKID)
	assertDec(t, "20", reqs[0].Required)
	assert.Equal(t, "C2", reqs[1].ComponentPKID)
	assertDec(t, "10", reqs[1].Required)
}

func TestCatalog_ExplodeIsLinear(t *testing.T) {
	cat := newCatalogBuilder().
		products("P1", "C1", "C2").
		bom("P1", "C1", "0.25").
		bom("P1", "C2", "3").
		build()

	a, b := dec("7.5"), dec("12")
	ra, err := cat.Explode("P1", a)
	require.NoError(t, err)
	rb, err := cat.Explode("P1", b)
	require.NoError(t, err)
	rab, err := cat.Explode("P1", a.Add(b))
	require.NoError(t, err)

	require.Len(t, rab, 2)
	for i := range rab {
		assert.Equal(t, ra[i].ComponentPKID, rab[i].ComponentPKID)
		assert.True(t, ra[i].Required.Add(rb[i].Required).Equal(rab[i].Required))
	}

	zero, err := cat.Explode("P1", decimal.Zero)
	require.NoError(t, err)
	for _, r := range zero {
		assert.True(t, r.Required.IsZero())
	}
}

func TestCatalog_ExplodeWithoutBOM(t *testing.T) {
	cat := newCatalogBuilder().products("P1").build()

	reqs, err := cat.Explode("P1", dec("5"))
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestCatalog_ExplodeKeepsInsertionOrder(t *testing.T) {
	cat := newCatalogBuilder().
		products("P1", "Z", "A", "M").
		bom("P1", "Z", "1").
		bom("P1", "A", "1").
		bom("P1", "M", "1").
		build()

	reqs, err := cat.Explode("P1", dec("1"))
	require.NoError(t, err)
	got := []string{reqs[0].ComponentPKID, reqs[1].ComponentPKID, reqs[2].ComponentPKID}
	assert.Equal(t, []string{"Z", "A", "M"}, got)
}

func TestCatalog_ExplodeUnknownComponent(t *testing.T) {
	cat := newCatalogBuilder().
		products("P1").
		bom("P1", "GHOST", "1").
		build()

	_, err := cat.Explode("P1", dec("1"))
	require.Error(t, err)

	var ie *shortage.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, shortage.IntegrityBOMComponent, ie.Kind)
	assert.Equal(t, "GHOST", ie.Reference)
	assert.Equal(t, "P1", ie.Referrer)
	assert.True(t, shortage.IsIntegrityFault(err))
}

func TestCatalog_Validate(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		assert.Empty(t, exampleCatalog().Validate())
	})

	t.Run("cycle", func(t *testing.T) {
		cat := newCatalogBuilder().
			products("A", "B", "C").
			bom("A", "B", "1").
			bom("B", "C", "1").
			bom("C", "A", "1").
			build()

		errs := cat.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "bom cycle")
	})
}

func TestCatalog_SubstitutesRankedByPriorityThenID(t *testing.T) {
	cat := newCatalogBuilder().
		products("C", "S1", "S2", "S3").
		substitute("C", "S3", 2).
		substitute("C", "S1", 1).
		substitute("C", "S2", 2).
		build()

	links := cat.Substitutes("C")
	require.Len(t, links, 3)
	assert.Equal(t, "S1", links[0].SubstitutePKID)
	assert.Equal(t, "S3", links[1].SubstitutePKID)
	assert.Equal(t, "S2", links[2].SubstitutePKID)
}
