package provider

import (
	"strconv"

	"github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
)

// JIS is the consignor-code format.
//
//	1,91,0,consignor code,consignor name,MMDD,bank,branch
//	2,bank,branch,account type,account,holder,amount,0,customer code,reference,result
type JIS struct{}

func (JIS) Code() string   { return "jis" }
func (JIS) Prefix() string { return "JIS" }

func (JIS) Encode(h domain.Header, lines []*domain.DebitExportLine) ([]byte, error) {
	records := make([][]string, 0, len(lines)+3)
	records = append(records, []string{
		recordHeader, typeCodeDebit, codeClassJIS,
		h.ConsignorCode,
		textenc.HalfWidthKana(h.ConsignorName),
		h.WithdrawalDate.Format("0102"),
		h.BankCode,
		h.BranchCode,
	})
	for _, l := range lines {
		records = append(records, []string{
			recordData,
			l.BankCode,
			l.BranchCode,
			l.AccountType,
			l.AccountNumber,
			textenc.HalfWidthKana(l.AccountHolderKana),
			strconv.FormatInt(l.Amount, 10),
			"0",
			l.CustomerCode,
			l.InvoiceNo,
			"",
		})
	}
	records = append(records, trailer(lines), []string{recordEnd})
	return writeFile(records)
}

func (JIS) ParseResult(raw []byte) ([]domain.ResultRow, error) {
	return readDataRecords(raw, 11, func(row int, r []string) domain.ResultRow {
		return resultRow(row, r[8], r[9], r[6], r[10])
	})
}
