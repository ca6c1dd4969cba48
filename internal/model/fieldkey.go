package model

// FieldKey identifies one enrichable field of an institution record.
type FieldKey string

const (
	FieldDirection  FieldKey = "direction"
	FieldEmail      FieldKey = "email"
	FieldPhone      FieldKey = "phone"
	FieldAddress    FieldKey = "address"
	FieldPostalCode FieldKey = "postal_code"
	FieldNotes      FieldKey = "notes"
)

// EnrichableFields lists every field the pipeline may propose values for, in
// workbook column order.
var EnrichableFields = []FieldKey{
	FieldDirection,
	FieldEmail,
	FieldPhone,
	FieldAddress,
	FieldPostalCode,
	FieldNotes,
}

// columnHeaders maps field keys to their workbook column headers. The
// identity column (Instituição) is handled separately since it is not an
// enrichable field.
var columnHeaders = map[FieldKey]string{
	FieldDirection:  "Direção",
	FieldEmail:      "E-Mail",
	FieldPhone:      "Telefone",
	FieldAddress:    "Morada",
	FieldPostalCode: "Código Postal",
	FieldNotes:      "Observações",
}

// Header returns the workbook column header for the field.
func (k FieldKey) Header() string {
	return columnHeaders[k]
}

// ValidField reports whether k names one of the enrichable fields.
func ValidField(k FieldKey) bool {
	_, ok := columnHeaders[k]
	return ok
}

// FieldByHeader resolves a workbook column header to its field key. Matching
// is tolerant of the accent variants seen in real sheets ("Codigo Postal"
// appears without the accent in older exports).
func FieldByHeader(header string) (FieldKey, bool) {
	for k, h := range columnHeaders {
		if h == header {
			return k, true
		}
	}
	if header == "Codigo Postal" {
		return FieldPostalCode, true
	}
	if header == "Direcao" || header == "Direccao" {
		return FieldDirection, true
	}
	if header == "Observacoes" {
		return FieldNotes, true
	}
	return "", false
}
