// File: api/schemas/bulk.go
package schemas

// BulkPriority is the optional priority column of a bulk-order row.
type BulkPriority string

const (
	PriorityHigh   BulkPriority = "high"
	PriorityNormal BulkPriority = "normal"
	PriorityLow    BulkPriority = "low"
)

// BulkOrderRow is one validated, sanitized line of a CSV bulk-order upload.
type BulkOrderRow struct {
	Row         int          `json:"row"`
	SKU         string       `json:"sku"`
	Quantity    int          `json:"quantity"`
	Notes       string       `json:"notes,omitempty"`
	ReferenceID string       `json:"reference_id,omitempty"`
	Priority    BulkPriority `json:"priority"`
}

// ThreatType classifies what pattern family a field matched.
type ThreatType string

const (
	ThreatSQLInjection     ThreatType = "sql_injection"
	ThreatScriptInjection  ThreatType = "script_injection"
	ThreatPathTraversal    ThreatType = "path_traversal"
	ThreatCommandInjection ThreatType = "command_injection"
	ThreatOversizedField   ThreatType = "oversized_field"
	ThreatMalformedContent ThreatType = "malformed_content"
)

// SecurityThreat reports a row that was excluded by the row-level scan. The
// offending value is truncated before it is stored here so audit logs never
// replay a full payload.
type SecurityThreat struct {
	Row     int        `json:"row"`
	Column  string     `json:"column"`
	Type    ThreatType `json:"type"`
	Value   string     `json:"value"`
	Message string     `json:"message"`
}

// RowError reports a row rejected for a non-security reason (missing SKU,
// unparseable quantity, and so on).
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// ParseSummary aggregates counts over one parse.
type ParseSummary struct {
	TotalRows     int `json:"total_rows"`
	ValidRows     int `json:"valid_rows"`
	ErrorRows     int `json:"error_rows"`
	TotalQuantity int `json:"total_quantity"`
	DistinctSKUs  int `json:"distinct_skus"`
}

// CSVParseResult is the complete outcome of one bulk-order ingestion.
type CSVParseResult struct {
	Rows    []BulkOrderRow   `json:"rows"`
	Errors  []RowError       `json:"errors,omitempty"`
	Threats []SecurityThreat `json:"security_threats,omitempty"`
	Summary ParseSummary     `json:"summary"`
}
