package tabular

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRow struct {
	ID      int64           `legacy:"ID"`
	Zip     string          `legacy:"ZIP"`
	Weight  float64         `legacy:"WEIGHT"`
	Amount  decimal.Decimal `legacy:"AMOUNT"`
	Voided  bool            `legacy:"VOIDED"`
	Status  *int            `legacy:"STATUS"`
	Missing string          `legacy:"NOT_IN_EXPORT"`
}

func TestDecode(t *testing.T) {
	t.Run("按标签解码并保留字符串原文", func(t *testing.T) {
		res := ParseString("ID,ZIP,WEIGHT,AMOUNT,VOIDED,STATUS\n9,01234,2,12.50,T,0\n", Options{})
		rows, errs := Decode[sampleRow](res.Rows)
		require.Empty(t, errs)
		require.Len(t, rows, 1)

		r := rows[0]
		assert.Equal(t, int64(9), r.ID)
		assert.Equal(t, "01234", r.Zip)
		assert.Equal(t, 2.0, r.Weight)
		assert.True(t, decimal.RequireFromString("12.5").Equal(r.Amount))
		assert.True(t, r.Voided)
		require.NotNil(t, r.Status)
		assert.Equal(t, 0, *r.Status)
		assert.Empty(t, r.Missing)
	})

	t.Run("空值保持零值", func(t *testing.T) {
		res := ParseString("ID,STATUS,AMOUNT\n3,,\n", Options{})
		rows, errs := Decode[sampleRow](res.Rows)
		require.Empty(t, errs)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].Status)
		assert.True(t, rows[0].Amount.IsZero())
	})

	t.Run("类型不符的行记录为行级错误", func(t *testing.T) {
		res := ParseString("ID,VOIDED\n1,Y\n2x,N\n3,maybe\n4,0\n", Options{})
		rows, errs := Decode[sampleRow](res.Rows)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(1), rows[0].ID)
		assert.Equal(t, int64(4), rows[1].ID)
		require.Len(t, errs, 2)
		assert.Equal(t, 3, errs[0].Line)
		assert.Equal(t, 4, errs[1].Line)
	})

	t.Run("列名大小写不敏感", func(t *testing.T) {
		res := ParseString("id,zip\n5,99501\n", Options{})
		rows, errs := Decode[sampleRow](res.Rows)
		require.Empty(t, errs)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(5), rows[0].ID)
		assert.Equal(t, "99501", rows[0].Zip)
	})
}
