// File: internal/bulk/parser.go
// Secure CSV ingestion for bulk orders. Two-phase defense: the whole payload
// is screened for non-text characteristics first, then every field of every
// row is scanned against the injection pattern families before sanitization.
package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// Per-field length ceilings.
const (
	maxSKULen       = 100
	maxNotesLen     = 500
	maxReferenceLen = 100
	maxQuantity     = 999999

	// How much of an offending value survives into a threat report.
	threatExcerptLen = 40

	// Share of control characters above which a payload is not treated as text.
	maxControlCharRatio = 0.01
)

// columnSynonyms maps normalized header names onto canonical columns.
var columnSynonyms = map[string]string{
	"sku":         "sku",
	"product":     "sku",
	"item":        "sku",
	"quantity":    "quantity",
	"qty":         "quantity",
	"amount":      "quantity",
	"count":       "quantity",
	"notes":       "notes",
	"note":        "notes",
	"comment":     "notes",
	"reference":   "referenceId",
	"referenceid": "referenceId",
	"ref":         "referenceId",
	"id":          "referenceId",
	"priority":    "priority",
}

// Parser is the secure CSV parser. It is stateless and safe for concurrent
// use.
type Parser struct {
	cfg    config.BulkConfig
	logger *zap.Logger
}

// NewParser builds a parser from configuration.
func NewParser(cfg config.BulkConfig, logger *zap.Logger) *Parser {
	return &Parser{cfg: cfg, logger: logger.Named("bulk_parser")}
}

// Parse ingests a CSV payload. Content-level rejections return an error and
// an audit log entry; row-level problems are reported inside the result.
func (p *Parser) Parse(content string) (*schemas.CSVParseResult, error) {
	if err := p.screenContent(content); err != nil {
		p.logger.Warn("Bulk payload rejected at content level",
			zap.Int("bytes", len(content)), zap.Error(err))
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &schemas.ValidationError{Field: "csv", Reason: "missing header row"}
	}
	columns, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	result := &schemas.CSVParseResult{}
	seenSKUs := make(map[string]struct{})

	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, schemas.RowError{Row: rowNum, Message: "malformed CSV row"})
			result.Summary.TotalRows++
			result.Summary.ErrorRows++
			continue
		}
		if result.Summary.TotalRows >= p.cfg.MaxRows {
			p.logger.Warn("Bulk payload truncated at row ceiling", zap.Int("max_rows", p.cfg.MaxRows))
			break
		}
		result.Summary.TotalRows++

		row, threats, rowErrs := p.parseRow(rowNum, columns, record)
		if len(threats) > 0 || len(rowErrs) > 0 {
			result.Threats = append(result.Threats, threats...)
			result.Errors = append(result.Errors, rowErrs...)
			result.Summary.ErrorRows++
			continue
		}

		result.Rows = append(result.Rows, *row)
		result.Summary.ValidRows++
		result.Summary.TotalQuantity += row.Quantity
		seenSKUs[row.SKU] = struct{}{}
	}

	result.Summary.DistinctSKUs = len(seenSKUs)

	p.logger.Info("Bulk payload parsed",
		zap.Int("total", result.Summary.TotalRows),
		zap.Int("valid", result.Summary.ValidRows),
		zap.Int("rejected", result.Summary.ErrorRows),
		zap.Int("threats", len(result.Threats)))
	return result, nil
}

// screenContent is the content-level phase: size ceiling and non-text
// characteristics reject the whole payload.
func (p *Parser) screenContent(content string) error {
	if int64(len(content)) > p.cfg.MaxPayloadBytes {
		return &schemas.ValidationError{Field: "csv", Reason: fmt.Sprintf("payload exceeds %d byte ceiling", p.cfg.MaxPayloadBytes)}
	}
	if content == "" {
		return &schemas.ValidationError{Field: "csv", Reason: "payload is empty"}
	}
	if !utf8.ValidString(content) {
		return &schemas.ValidationError{Field: "csv", Reason: "payload is not valid UTF-8"}
	}
	if strings.ContainsRune(content, 0) {
		return &schemas.ValidationError{Field: "csv", Reason: "payload contains null bytes"}
	}

	control := 0
	for _, r := range content {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
	}
	if ratio := float64(control) / float64(len(content)); ratio > maxControlCharRatio {
		return &schemas.ValidationError{Field: "csv", Reason: "payload has excessive control characters"}
	}
	return nil
}

// normalizeHeader resolves case-insensitive column synonyms and checks the
// required columns are present.
func normalizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]bool)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		canonical, ok := columnSynonyms[key]
		if !ok {
			canonical = "" // unmapped columns are ignored
		}
		columns[i] = canonical
		if canonical != "" {
			seen[canonical] = true
		}
	}
	if !seen["sku"] || !seen["quantity"] {
		return nil, &schemas.ValidationError{Field: "csv", Reason: "required columns SKU and Quantity not found"}
	}
	return columns, nil
}

// parseRow runs the row-level scan, field validation and sanitization.
func (p *Parser) parseRow(rowNum int, columns, record []string) (*schemas.BulkOrderRow, []schemas.SecurityThreat, []schemas.RowError) {
	fields := make(map[string]string)
	for i, value := range record {
		if i < len(columns) && columns[i] != "" {
			fields[columns[i]] = strings.TrimSpace(value)
		}
	}

	var threats []schemas.SecurityThreat
	var rowErrs []schemas.RowError

	// Security scan runs over every mapped field before any other validation
	// so hostile rows never get partially processed.
	for column, value := range fields {
		if t, found := scanField(value); found {
			threats = append(threats, schemas.SecurityThreat{
				Row:     rowNum,
				Column:  column,
				Type:    t.threatType,
				Value:   excerpt(value),
				Message: t.message,
			})
		}
	}
	if len(threats) > 0 {
		return nil, threats, nil
	}

	row := &schemas.BulkOrderRow{Row: rowNum, Priority: schemas.PriorityNormal}

	sku := fields["sku"]
	switch {
	case sku == "":
		rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "sku", Message: "SKU is required"})
	case len(sku) > maxSKULen:
		rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "sku",
			Message: fmt.Sprintf("SKU exceeds %d characters", maxSKULen)})
	default:
		row.SKU = sanitizeIdentifier(sku)
	}

	qty, err := strconv.Atoi(fields["quantity"])
	switch {
	case err != nil:
		rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "quantity", Message: "quantity must be an integer"})
	case qty <= 0:
		rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "quantity", Message: "quantity must be positive"})
	case qty > maxQuantity:
		rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "quantity",
			Message: fmt.Sprintf("quantity exceeds %d", maxQuantity)})
	default:
		row.Quantity = qty
	}

	if notes := fields["notes"]; notes != "" {
		if len(notes) > maxNotesLen {
			rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "notes",
				Message: fmt.Sprintf("notes exceed %d characters", maxNotesLen)})
		} else {
			row.Notes = sanitizeFreeText(notes)
		}
	}

	if ref := fields["referenceId"]; ref != "" {
		if len(ref) > maxReferenceLen {
			rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "referenceId",
				Message: fmt.Sprintf("reference exceeds %d characters", maxReferenceLen)})
		} else {
			row.ReferenceID = sanitizeIdentifier(ref)
		}
	}

	if prio := strings.ToLower(fields["priority"]); prio != "" {
		switch schemas.BulkPriority(prio) {
		case schemas.PriorityHigh, schemas.PriorityNormal, schemas.PriorityLow:
			row.Priority = schemas.BulkPriority(prio)
		default:
			rowErrs = append(rowErrs, schemas.RowError{Row: rowNum, Column: "priority",
				Message: fmt.Sprintf("priority %q is not one of high|normal|low", prio)})
		}
	}

	if len(rowErrs) > 0 {
		return nil, nil, rowErrs
	}
	return row, nil, nil
}

func excerpt(value string) string {
	if len(value) <= threatExcerptLen {
		return value
	}
	return value[:threatExcerptLen] + "..."
}
