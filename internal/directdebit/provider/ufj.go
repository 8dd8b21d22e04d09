package provider

import (
	"fmt"
	"strconv"

	"github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
)

// UFJ carries the billing period as a trailing YYYYMM code on each data row.
//
//	1,91,0,consignor code,consignor name,MMDD,bank
//	2,bank,branch,account type,account,holder,amount,customer code,reference,YYYYMM,result
type UFJ struct{}

func (UFJ) Code() string   { return "ufj" }
func (UFJ) Prefix() string { return "UFJ" }

func (UFJ) Encode(h domain.Header, lines []*domain.DebitExportLine) ([]byte, error) {
	period := fmt.Sprintf("%04d%02d", h.Year, h.Month)
	records := make([][]string, 0, len(lines)+3)
	records = append(records, []string{
		recordHeader, typeCodeDebit, codeClassJIS,
		h.ConsignorCode,
		textenc.HalfWidthKana(h.ConsignorName),
		h.WithdrawalDate.Format("0102"),
		h.BankCode,
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
			l.CustomerCode,
			l.InvoiceNo,
			period,
			"",
		})
	}
	records = append(records, trailer(lines), []string{recordEnd})
	return writeFile(records)
}

func (UFJ) ParseResult(raw []byte) ([]domain.ResultRow, error) {
	return readDataRecords(raw, 11, func(row int, r []string) domain.ResultRow {
		return resultRow(row, r[7], r[8], r[6], r[10])
	})
}
