// Package store persists institution records in an xlsx workbook and applies
// consolidated updates under the monotonic-confidence merge policy. The main
// sheet stays exactly as a person would keep it; per-field confidence and
// provenance live in a sidecar sheet so they survive across runs.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

// identityHeader is the workbook column holding the institution name.
const identityHeader = "Instituição"

// metaSheet is the sidecar sheet carrying confidence, source, and timestamp
// per institution and field.
const metaSheet = "_enrich_meta"

var metaHeader = []string{"institution", "field", "confidence", "source", "updated_at"}

// Options locates the workbook and tunes merge behavior.
type Options struct {
	Path     string
	Sheet    string // empty selects the first data sheet
	SkipRows int    // rows above the header row
	// ConfirmOnTie refreshes UpdatedAt when a candidate re-confirms a stored
	// value at equal confidence.
	ConfirmOnTie bool
}

// Store is the xlsx-backed institution store. It owns its synchronization:
// Merge, Flush, and Backup may be called from concurrent pipeline workers.
type Store struct {
	mu   sync.Mutex
	opts Options

	file      *xlsx.File
	sheet     *xlsx.Sheet
	nameCol   int
	cols      map[model.FieldKey]int
	extraCols map[string]int

	records []*model.Institution
	index   map[string]*model.Institution
}

// Open loads the workbook into memory. Non-empty fields load at confidence
// low, source manual; the meta sheet, when present, restores the richer state
// recorded by earlier runs. Meta rows that fail to parse degrade to the load
// defaults instead of failing the open.
func Open(opts Options) (*Store, error) {
	f, err := xlsx.OpenFile(opts.Path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open workbook")
	}

	sheet, err := pickSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	s := &Store{
		opts:  opts,
		file:  f,
		sheet: sheet,
		index: map[string]*model.Institution{},
	}
	if err := s.parseHeader(); err != nil {
		return nil, err
	}
	s.loadRecords()
	s.applyMeta()

	zap.L().Info("store: workbook loaded",
		zap.String("path", opts.Path),
		zap.String("sheet", sheet.Name),
		zap.Int("records", len(s.records)),
	)
	return s, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("store: sheet %q not found", name)
		}
		return sheet, nil
	}
	for _, sheet := range f.Sheets {
		if sheet.Name != metaSheet {
			return sheet, nil
		}
	}
	return nil, eris.New("store: workbook has no data sheet")
}

func (s *Store) parseHeader() error {
	if s.opts.SkipRows >= len(s.sheet.Rows) {
		return eris.Errorf("store: header row %d out of range (sheet has %d rows)", s.opts.SkipRows, len(s.sheet.Rows))
	}
	header := s.sheet.Rows[s.opts.SkipRows]

	s.nameCol = -1
	s.cols = map[model.FieldKey]int{}
	s.extraCols = map[string]int{}
	for i, cell := range header.Cells {
		h := strings.TrimSpace(cell.String())
		if h == identityHeader || h == "Instituicao" {
			s.nameCol = i
			continue
		}
		if k, ok := model.FieldByHeader(h); ok {
			s.cols[k] = i
			continue
		}
		if h != "" {
			s.extraCols[h] = i
		}
	}
	if s.nameCol < 0 {
		return eris.Errorf("store: identity column %q not found in header row %d", identityHeader, s.opts.SkipRows)
	}

	// Older exports miss some of the enrichable columns. Append them so a
	// merge always has a cell to land in.
	for _, k := range model.EnrichableFields {
		if _, ok := s.cols[k]; ok {
			continue
		}
		idx := len(header.Cells)
		setCell(header, idx, k.Header())
		s.cols[k] = idx
		zap.L().Info("store: added missing column", zap.String("header", k.Header()))
	}
	return nil
}

func (s *Store) loadRecords() {
	for i := s.opts.SkipRows + 1; i < len(s.sheet.Rows); i++ {
		row := s.sheet.Rows[i]
		name := strings.TrimSpace(cellString(row, s.nameCol))
		if name == "" {
			continue
		}
		if _, dup := s.index[name]; dup {
			zap.L().Warn("store: duplicate institution row ignored",
				zap.String("institution", name),
				zap.Int("row", i),
			)
			continue
		}

		rec := model.NewInstitution(name, i)
		for k, col := range s.cols {
			v := strings.TrimSpace(cellString(row, col))
			if v == "" {
				continue
			}
			rec.SetField(k, model.FieldValue{
				Value:      v,
				Confidence: model.ConfidenceLow,
				Source:     model.SourceManual,
			})
		}
		for h, col := range s.extraCols {
			if v := strings.TrimSpace(cellString(row, col)); v != "" {
				rec.Extra[h] = v
			}
		}

		s.records = append(s.records, rec)
		s.index[name] = rec
	}
}

// applyMeta restores confidence, source, and timestamp from the sidecar
// sheet. A meta row for a field whose cell was emptied by hand is stale and
// skipped, as is anything that no longer parses.
func (s *Store) applyMeta() {
	meta, ok := s.file.Sheet[metaSheet]
	if !ok {
		return
	}
	for i := 1; i < len(meta.Rows); i++ {
		row := meta.Rows[i]
		rec, ok := s.index[strings.TrimSpace(cellString(row, 0))]
		if !ok {
			continue
		}
		k := model.FieldKey(strings.TrimSpace(cellString(row, 1)))
		if !model.ValidField(k) {
			continue
		}
		cur := rec.Field(k)
		if cur.Absent() {
			continue
		}
		conf := model.ParseConfidence(strings.TrimSpace(cellString(row, 2)))
		if conf == model.ConfidenceNone {
			continue
		}
		source := strings.TrimSpace(cellString(row, 3))
		if source == "" {
			source = model.SourceManual
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(cellString(row, 4)))
		if err != nil {
			ts = time.Time{}
		}
		rec.SetField(k, model.FieldValue{
			Value:      cur.Value,
			Confidence: conf,
			Source:     source,
			UpdatedAt:  ts,
		})
	}
}

// Len returns the number of loaded records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Iterate calls fn with a copy of every record in worksheet row order. Copies
// keep workers from racing concurrent merges; an fn error stops the walk.
func (s *Store) Iterate(fn func(*model.Institution) error) error {
	for i := 0; ; i++ {
		s.mu.Lock()
		if i >= len(s.records) {
			s.mu.Unlock()
			return nil
		}
		rec := s.records[i].Clone()
		s.mu.Unlock()

		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Get returns a copy of the named record.
func (s *Store) Get(name string) (*model.Institution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Path returns the backing workbook path.
func (s *Store) Path() string { return s.opts.Path }

// Merge applies the candidate onto the named record and returns the updated
// record plus the number of changed fields. A field is replaced only when the
// candidate's confidence strictly beats the stored one, or the stored value
// is absent; verified fields are never touched. Observações alone refreshes
// at equal confidence, since consolidation rebuilds it each run.
func (s *Store) Merge(name string, cand *model.CandidateRecord) (*model.Institution, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[name]
	if !ok {
		return nil, 0, eris.Errorf("store: unknown institution %q", name)
	}

	changed := 0
	for _, k := range model.EnrichableFields {
		cv, ok := cand.Fields[k]
		if !ok || cv.Absent() {
			continue
		}
		stored := rec.Field(k)
		if stored.Confidence == model.ConfidenceVerified {
			continue
		}

		if k == model.FieldNotes {
			if cv.Value != stored.Value && !stored.Confidence.Beats(cv.Confidence) {
				rec.SetField(k, cv)
				changed++
			}
			continue
		}

		switch {
		case stored.Absent():
			rec.SetField(k, cv)
			changed++
		case cv.Confidence.Beats(stored.Confidence):
			rec.SetField(k, cv)
			changed++
		case cv.Confidence == stored.Confidence && cv.Value == stored.Value && s.opts.ConfirmOnTie:
			stored.UpdatedAt = cv.UpdatedAt
			rec.SetField(k, stored)
		}
	}
	return rec.Clone(), changed, nil
}

// Flush writes the workbook through a temp file and atomic rename so an
// interrupt mid-write never corrupts the store.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLockSentinel(); err != nil {
		return err
	}

	s.syncSheet()
	s.rebuildMeta()

	dir := filepath.Dir(s.opts.Path)
	tmp, err := os.CreateTemp(dir, ".enrich-*.xlsx")
	if err != nil {
		return &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: create temp workbook")}
	}
	tmpPath := tmp.Name()

	if err := s.file.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: write workbook")}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: close temp workbook")}
	}
	if err := os.Rename(tmpPath, s.opts.Path); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Kind: classifyFSError(err), Err: eris.Wrap(err, "store: replace workbook")}
	}
	return nil
}

// checkLockSentinel refuses to flush while Excel's owner file for the
// workbook exists; saving under an open editor loses one side's edits.
func (s *Store) checkLockSentinel() error {
	sentinel := filepath.Join(filepath.Dir(s.opts.Path), "~$"+filepath.Base(s.opts.Path))
	if _, err := os.Stat(sentinel); err == nil {
		return &Error{Kind: LockConflict, Err: eris.Errorf("store: workbook is open elsewhere (%s present)", sentinel)}
	}
	return nil
}

func classifyFSError(err error) ErrorKind {
	if os.IsPermission(err) {
		return LockConflict
	}
	return WriteFailed
}

// syncSheet writes every record's current field values back into its row.
// Identity and unrecognized columns are never touched.
func (s *Store) syncSheet() {
	for _, rec := range s.records {
		if rec.Row >= len(s.sheet.Rows) {
			continue
		}
		row := s.sheet.Rows[rec.Row]
		for k, col := range s.cols {
			setCell(row, col, rec.Field(k).Value)
		}
	}
}

// rebuildMeta regenerates the sidecar sheet from scratch on every flush.
func (s *Store) rebuildMeta() {
	meta, ok := s.file.Sheet[metaSheet]
	if !ok {
		var err error
		meta, err = s.file.AddSheet(metaSheet)
		if err != nil {
			zap.L().Warn("store: meta sheet unavailable", zap.Error(err))
			return
		}
	}
	meta.Rows = nil
	meta.MaxRow = 0

	hr := meta.AddRow()
	for _, h := range metaHeader {
		hr.AddCell().SetString(h)
	}
	for _, rec := range s.records {
		for _, k := range model.EnrichableFields {
			v := rec.Field(k)
			if v.Absent() {
				continue
			}
			row := meta.AddRow()
			row.AddCell().SetString(rec.Name)
			row.AddCell().SetString(string(k))
			row.AddCell().SetString(v.Confidence.String())
			row.AddCell().SetString(v.Source)
			if v.UpdatedAt.IsZero() {
				row.AddCell().SetString("")
			} else {
				row.AddCell().SetString(v.UpdatedAt.UTC().Format(time.RFC3339))
			}
		}
	}
}

// Backup copies the workbook as last flushed into dir and returns the copy's
// path. An empty dir places the backup next to the workbook.
func (s *Store) Backup(dir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir == "" {
		dir = filepath.Dir(s.opts.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: create backup dir")}
	}

	base := filepath.Base(s.opts.Path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dst := filepath.Join(dir, fmt.Sprintf("Backup_%s_%s.xlsx", stem, time.Now().Format("20060102_150405")))

	src, err := os.Open(s.opts.Path)
	if err != nil {
		return "", &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: open workbook for backup")}
	}
	defer src.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return "", &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: create backup")}
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: copy backup")}
	}
	if err := out.Close(); err != nil {
		return "", &Error{Kind: WriteFailed, Err: eris.Wrap(err, "store: close backup")}
	}

	zap.L().Info("store: backup written", zap.String("path", dst))
	return dst, nil
}

// ExportCSV writes the current records in workbook column order.
func (s *Store) ExportCSV(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(model.EnrichableFields)+1)
	header = append(header, identityHeader)
	for _, k := range model.EnrichableFields {
		header = append(header, k.Header())
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "store: write csv header")
	}

	for _, rec := range s.records {
		row := make([]string, 0, len(header))
		row = append(row, rec.Name)
		for _, k := range model.EnrichableFields {
			row = append(row, rec.Field(k).Value)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "store: write csv row for %s", rec.Name)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "store: flush csv")
	}
	return nil
}

func setCell(row *xlsx.Row, idx int, v string) {
	for len(row.Cells) <= idx {
		row.AddCell()
	}
	row.Cells[idx].SetString(v)
}

func cellString(row *xlsx.Row, idx int) string {
	if idx < 0 || idx >= len(row.Cells) {
		return ""
	}
	return row.Cells[idx].String()
}
