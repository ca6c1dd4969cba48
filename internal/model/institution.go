package model

import "time"

// SourceManual tags values loaded from the workbook or entered by a person.
const SourceManual = "manual"

// SourceConsolidated tags values produced by the consolidation engine.
const SourceConsolidated = "llm-consolidated"

// FieldValue is one enrichable field's current state: the value itself plus
// the confidence and provenance that gate future overwrites.
type FieldValue struct {
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
	Source     string     `json:"source"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Absent reports whether the field holds no value.
func (v FieldValue) Absent() bool {
	return v.Value == ""
}

// Institution is one record under enrichment. Name is the immutable identity;
// Row is the backing worksheet row the record was loaded from.
type Institution struct {
	Name   string                  `json:"name"`
	Row    int                     `json:"row"`
	Fields map[FieldKey]FieldValue `json:"fields"`
	Extra  map[string]string       `json:"-"`
}

// NewInstitution returns a record with every enrichable field initialized to
// an absent FieldValue.
func NewInstitution(name string, row int) *Institution {
	fields := make(map[FieldKey]FieldValue, len(EnrichableFields))
	for _, k := range EnrichableFields {
		fields[k] = FieldValue{}
	}
	return &Institution{Name: name, Row: row, Fields: fields, Extra: map[string]string{}}
}

// Field returns the current value for k, or an absent FieldValue when the
// record has never seen the field.
func (i *Institution) Field(k FieldKey) FieldValue {
	return i.Fields[k]
}

// SetField stores v under k. Callers outside the store should go through the
// store's merge instead; this is the raw mutation used by load and merge.
func (i *Institution) SetField(k FieldKey, v FieldValue) {
	i.Fields[k] = v
}

// Clone returns a deep copy so pipeline workers can read records without
// racing the store's merge.
func (i *Institution) Clone() *Institution {
	c := &Institution{
		Name:   i.Name,
		Row:    i.Row,
		Fields: make(map[FieldKey]FieldValue, len(i.Fields)),
		Extra:  make(map[string]string, len(i.Extra)),
	}
	for k, v := range i.Fields {
		c.Fields[k] = v
	}
	for k, v := range i.Extra {
		c.Extra[k] = v
	}
	return c
}
