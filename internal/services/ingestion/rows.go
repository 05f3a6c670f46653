package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"transaction-reconciliation-backend/internal/models"
)

// Date layouts accepted in uploaded files, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// buildRecord validates one row against the job's column mapping and turns
// it into a Record. Unmapped columns are preserved in the additional-data
// bag. rowIndex is 1-based and only used for error text.
func buildRecord(jobID uuid.UUID, row Row, mapping map[string]string, rowIndex int) (*models.Record, error) {
	transactionID := strings.TrimSpace(row[mapping["transactionId"]])
	amountStr := strings.TrimSpace(row[mapping["amount"]])
	referenceNumber := strings.TrimSpace(row[mapping["referenceNumber"]])
	dateStr := strings.TrimSpace(row[mapping["date"]])

	if transactionID == "" || amountStr == "" || referenceNumber == "" || dateStr == "" {
		return nil, fmt.Errorf("missing required fields in row %d", rowIndex)
	}

	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in row %d: %s", rowIndex, amountStr)
	}

	date, err := parseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid date in row %d: %s", rowIndex, dateStr)
	}

	// Columns mapped to a required field are consumed; everything else is
	// kept verbatim.
	consumed := make(map[string]bool, len(models.RequiredRecordFields))
	for _, field := range models.RequiredRecordFields {
		consumed[mapping[field]] = true
	}
	additional := datatypes.JSONMap{}
	for column, value := range row {
		if !consumed[column] {
			additional[column] = value
		}
	}

	return &models.Record{
		ID:              uuid.New(),
		UploadJobID:     jobID,
		TransactionID:   transactionID,
		Amount:          amount,
		ReferenceNumber: referenceNumber,
		Date:            date,
		AdditionalData:  additional,
	}, nil
}

// parseAmount accepts plain decimals, tolerating currency symbols and
// thousand separators. Negative amounts are rejected.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
