package provider

import (
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLines() []*domain.DebitExportLine {
	return []*domain.DebitExportLine{
		{
			LineNo: 1, CustomerCode: "C0001", InvoiceNo: "INV-202504-0001",
			BankCode: "0005", BranchCode: "123", AccountType: "1", AccountNumber: "1234567",
			AccountHolderKana: "ヤマダ　ハナコ", Amount: 12000,
		},
		{
			LineNo: 2, CustomerCode: "C0002", InvoiceNo: "INV-202504-0002",
			BankCode: "0001", BranchCode: "001", AccountType: "1", AccountNumber: "7654321",
			AccountHolderKana: "コジマ　メグミ", Amount: 8000,
		},
	}
}

func testHeader() domain.Header {
	return domain.Header{
		ConsignorCode:  "1234567890",
		ConsignorName:  "ガクシュウジュク",
		BankCode:       "0005",
		BranchCode:     "001",
		WithdrawalDate: time.Date(2025, 4, 27, 0, 0, 0, 0, time.UTC),
		Year:           2025,
		Month:          4,
	}
}

func decode(t *testing.T, raw []byte) []string {
	t.Helper()
	text, enc, err := textenc.DetectDecode(raw)
	require.NoError(t, err)
	assert.Equal(t, textenc.EncodingShiftJIS, enc)
	return strings.Split(strings.TrimRight(text, "\r\n"), "\r\n")
}

func TestJISEncode(t *testing.T) {
	raw, err := JIS{}.Encode(testHeader(), testLines())
	require.NoError(t, err)

	lines := decode(t, raw)
	require.Len(t, lines, 5)
	assert.Equal(t, "1,91,0,1234567890,ｶﾞｸｼｭｳｼﾞｭｸ,0427,0005,001", lines[0])
	assert.Equal(t, "2,0005,123,1,1234567,ﾔﾏﾀﾞ ﾊﾅｺ,12000,0,C0001,INV-202504-0001,", lines[1])
	assert.Equal(t, "8,2,20000", lines[3])
	assert.Equal(t, "9", lines[4])
}

func TestUFJEncodeCarriesPeriod(t *testing.T) {
	raw, err := UFJ{}.Encode(testHeader(), testLines())
	require.NoError(t, err)

	lines := decode(t, raw)
	require.Len(t, lines, 5)
	assert.Equal(t, "1,91,0,1234567890,ｶﾞｸｼｭｳｼﾞｭｸ,0427,0005", lines[0])
	assert.Equal(t, "2,0001,001,1,7654321,ｺｼﾞﾏ ﾒｸﾞﾐ,8000,C0002,INV-202504-0002,202504,", lines[2])
}

func resultFile(t *testing.T, rows ...string) []byte {
	t.Helper()
	raw, err := textenc.EncodeShiftJIS("1,91,0,1234567890,ｶﾞｸｼｭｳｼﾞｭｸ,0427\r\n" + strings.Join(rows, "\r\n") + "\r\n8,2,20000\r\n9\r\n")
	require.NoError(t, err)
	return raw
}

func TestJISParseResult(t *testing.T) {
	raw := resultFile(t,
		"2,0005,123,1,1234567,ﾔﾏﾀﾞ ﾊﾅｺ,12000,0,C0001,INV-202504-0001,0",
		"2,0001,001,1,7654321,ｺｼﾞﾏ ﾒｸﾞﾐ,8000,0,C0002,INV-202504-0002,1",
		"2,0001,001,1,7654321,ｺｼﾞﾏ ﾒｸﾞﾐ,x,0,C0003,INV-202504-0003,0",
		"2,0001,001",
	)
	rows, err := JIS{}.ParseResult(raw)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, domain.ResultRow{Row: 2, CustomerCode: "C0001", Reference: "INV-202504-0001", Amount: 12000, ResultCode: "0"}, rows[0])
	assert.Equal(t, "1", rows[1].ResultCode)
	assert.Equal(t, int64(8000), rows[1].Amount)
	assert.ErrorIs(t, rows[2].Err, domain.ErrInvalidResultRow)
	assert.ErrorIs(t, rows[3].Err, domain.ErrInvalidResultRow)
	assert.Equal(t, 5, rows[3].Row)
}

func TestUFJParseResult(t *testing.T) {
	raw := resultFile(t,
		"2,0001,001,1,7654321,ｺｼﾞﾏ ﾒｸﾞﾐ,8000,C0002,INV-202504-0002,202504,2",
		"2,0001,001,1,7654321,ｺｼﾞﾏ ﾒｸﾞﾐ,8000,C0002,INV-202504-0002,202504,",
	)
	rows, err := UFJ{}.ParseResult(raw)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C0002", rows[0].CustomerCode)
	assert.Equal(t, "INV-202504-0002", rows[0].Reference)
	assert.Equal(t, "2", rows[0].ResultCode)
	assert.NoError(t, rows[0].Err)
	assert.ErrorIs(t, rows[1].Err, domain.ErrInvalidResultRow)
}

func TestRegistry(t *testing.T) {
	r := Default()
	p, err := r.Get(" JIS ")
	require.NoError(t, err)
	assert.Equal(t, "JIS", p.Prefix())

	_, err = r.Get("smbc")
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestResultReason(t *testing.T) {
	assert.Equal(t, "success", domain.ResultReason("0"))
	assert.Equal(t, "insufficient_funds", domain.ResultReason("1"))
	assert.Equal(t, "unknown_7", domain.ResultReason("7"))
}
