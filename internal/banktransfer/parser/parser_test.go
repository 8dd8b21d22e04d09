package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func TestParsePayer(t *testing.T) {
	cases := []struct {
		in, hint, name string
	}{
		{"８２１８８５９コジマ", "8218859", "コジマ"},
		{"カワカミ　ユミコ", "", "カワカミ ユミコ"},
		{"1234 ﾔﾏﾀﾞ ﾊﾅｺ", "1234", "ヤマダ ハナコ"},
		{"", "", ""},
	}
	for _, tc := range cases {
		hint, name := ParsePayer(tc.in)
		assert.Equal(t, tc.hint, hint, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("12,000")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), v)

	v, err = ParseAmount("￥１２，５００円")
	require.NoError(t, err)
	assert.Equal(t, int64(12500), v)

	_, err = ParseAmount("abc")
	assert.Error(t, err)
	_, err = ParseAmount("0")
	assert.Error(t, err)
	_, err = ParseAmount("")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-04-01", "2025/04/01", "2025/4/1", "20250401", "２０２５０４０１"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDate("04-01")
	assert.Error(t, err)
}

func TestParseGeneric_CollectsRowErrors(t *testing.T) {
	body := "\ufeff日付,金額,振込人名,振込人カナ,銀行名\n" +
		"2025/04/01,\"12,000\",山田 花子,ヤマダ ハナコ,みずほ\n" +
		"bad-date,5000,佐藤 一郎,サトウ イチロウ,\n" +
		"2025/04/02,,鈴木,スズキ,\n" +
		",,,,\n" +
		"2025/04/03,3000,８２１８８５９コジマ,,\n"

	res, err := ParseGeneric(strings.NewReader(body), domain.ColumnMapping{}, 10)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	first := res.Rows[0]
	assert.Equal(t, 2, first.Row)
	assert.Equal(t, int64(12000), first.Amount)
	assert.Equal(t, "山田 花子", first.PayerName)
	assert.Equal(t, "ヤマダ ハナコ", first.PayerKana)
	assert.Equal(t, "みずほ", first.BankName)

	assert.Equal(t, "8218859", res.Rows[1].GuardianHint)
	assert.Equal(t, "コジマ", res.Rows[1].PayerName)

	require.Equal(t, 2, res.Errors.Total)
	assert.Equal(t, 3, res.Errors.Items[0].Row)
	assert.Equal(t, "日付", res.Errors.Items[0].Field)
	assert.Equal(t, 4, res.Errors.Items[1].Row)
	assert.Equal(t, "金額", res.Errors.Items[1].Field)
}

func TestParseGeneric_CustomMappingAndMissingColumn(t *testing.T) {
	body := "date,amount,name\n2025-04-05,700,Kojima\n"
	res, err := ParseGeneric(strings.NewReader(body), domain.ColumnMapping{Date: "date", Amount: "amount", PayerName: "name"}, 10)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(700), res.Rows[0].Amount)

	_, err = ParseGeneric(strings.NewReader("date,name\n"), domain.ColumnMapping{Date: "date", Amount: "amount", PayerName: "name"}, 10)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)

	_, err = ParseGeneric(strings.NewReader(""), domain.ColumnMapping{}, 10)
	assert.ErrorIs(t, err, domain.ErrEmptyFile)
}

func TestParseGeneric_BoundsErrorList(t *testing.T) {
	var b strings.Builder
	b.WriteString("日付,金額,振込人名\n")
	for i := 0; i < 5; i++ {
		b.WriteString("x,1,a\n")
	}
	res, err := ParseGeneric(strings.NewReader(b.String()), domain.ColumnMapping{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Errors.Total)
	assert.Len(t, res.Errors.Items, 2)
	assert.True(t, res.Errors.Truncated())
}

func TestParseRaw_ShiftJISVariants(t *testing.T) {
	text := "1,header,,\r\n" +
		"2,20250401,８２１８８５９コジマ,\"10,000\",ミズホ,シンジュク\r\n" +
		"2,20250402,,カワカミ　ユミコ,5000,ミツビシ,ナゴヤ\r\n" +
		"2,2025xx03,スズキ,100\r\n" +
		"8,trailer\r\n"
	raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	res, err := ParseRaw(raw, 10)
	require.NoError(t, err)
	assert.Equal(t, textenc.EncodingShiftJIS, res.Encoding)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, "8218859", res.Rows[0].GuardianHint)
	assert.Equal(t, "コジマ", res.Rows[0].PayerName)
	assert.Equal(t, int64(10000), res.Rows[0].Amount)
	assert.Equal(t, "ミズホ", res.Rows[0].BankName)

	assert.Equal(t, "", res.Rows[1].GuardianHint)
	assert.Equal(t, "カワカミ ユミコ", res.Rows[1].PayerName)
	assert.Equal(t, int64(5000), res.Rows[1].Amount)
	assert.Equal(t, "ナゴヤ", res.Rows[1].BranchName)

	require.Equal(t, 1, res.Errors.Total)
	assert.Equal(t, 4, res.Errors.Items[0].Row)
}

func TestParseRaw_UTF8AndEmpty(t *testing.T) {
	res, err := ParseRaw([]byte("2,2025-04-01,サトウ,1200\n"), 10)
	require.NoError(t, err)
	assert.Equal(t, textenc.EncodingUTF8, res.Encoding)
	require.Len(t, res.Rows, 1)

	_, err = ParseRaw([]byte("  \n"), 10)
	assert.ErrorIs(t, err, domain.ErrEmptyFile)
}
