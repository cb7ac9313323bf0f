// ABOUTME: CSV-backed contact ledger with whole-file atomic saves
// ABOUTME: Preserves unknown columns and untouched values verbatim across load/save
package ledger

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jpchacon09/APOLLO/models"
)

var (
	// ErrPersistence wraps every failure to write the ledger. The previous file is
	// left untouched when it is returned.
	ErrPersistence = errors.New("ledger persistence failed")

	// ErrNoEmailColumn is returned when no header column can serve as the email key.
	ErrNoEmailColumn = errors.New("ledger has no email column")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type row struct {
	raw    []string
	loaded models.ContactRecord
	rec    *models.ContactRecord
}

// Ledger is the in-memory contact table. It is not safe for concurrent use;
// callers that mutate records from several goroutines serialize access themselves.
type Ledger struct {
	path   string
	header []string
	bom    bool
	cols   [numFields]int
	rows   []*row
	index  map[string]*row
	dups   []string
}

// Load reads a ledger file. An empty file yields an empty ledger with the
// canonical header.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	l, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	l.path = path
	return l, nil
}

func parse(data []byte) (*Ledger, error) {
	l := &Ledger{index: make(map[string]*row)}

	if bytes.HasPrefix(data, utf8BOM) {
		l.bom = true
		data = data[len(utf8BOM):]
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		for f := field(0); f < numFields; f++ {
			l.header = append(l.header, f.canonical())
		}
		l.cols = resolveColumns(l.header)
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	l.header = header
	l.cols = resolveColumns(header)
	if l.cols[fieldEmail] < 0 {
		return nil, ErrNoEmailColumn
	}

	bound := l.boundColumns()
	seenDup := make(map[string]bool)

	for line := 2; ; line++ {
		values, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if len(values) > len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", line, len(values), len(header))
		}
		for len(values) < len(header) {
			values = append(values, "")
		}

		rec := &models.ContactRecord{}
		for f := field(0); f < numFields; f++ {
			if idx := l.cols[f]; idx >= 0 {
				setField(rec, f, values[idx])
			}
		}
		for i, name := range header {
			if bound[i] || l.shadowed(i) {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[name] = values[i]
		}

		rw := &row{raw: values, loaded: snapshot(rec), rec: rec}
		l.rows = append(l.rows, rw)

		if rec.Email == "" {
			continue
		}
		if _, exists := l.index[rec.Email]; exists {
			if !seenDup[rec.Email] {
				seenDup[rec.Email] = true
				l.dups = append(l.dups, rec.Email)
			}
			continue
		}
		l.index[rec.Email] = rw
	}

	return l, nil
}

// snapshot copies the typed fields as loaded so later in-place edits cannot leak
// into the comparison Save makes.
func snapshot(rec *models.ContactRecord) models.ContactRecord {
	cp := *rec
	if rec.LastEventAt != nil {
		t := *rec.LastEventAt
		cp.LastEventAt = &t
	}
	if rec.LastSyncedAt != nil {
		t := *rec.LastSyncedAt
		cp.LastSyncedAt = &t
	}
	cp.Extra = nil
	return cp
}

func (l *Ledger) boundColumns() []bool {
	bound := make([]bool, len(l.header))
	for f := field(0); f < numFields; f++ {
		if idx := l.cols[f]; idx >= 0 {
			bound[idx] = true
		}
	}
	return bound
}

// shadowed reports whether column i repeats an earlier header name. Such columns
// are written back from the raw row since Extra is keyed by name.
func (l *Ledger) shadowed(i int) bool {
	for j := 0; j < i; j++ {
		if l.header[j] == l.header[i] {
			return true
		}
	}
	return false
}

// Reload re-reads the ledger from its file, discarding in-memory changes.
// Records returned before the reload are detached from the ledger.
func (l *Ledger) Reload() error {
	fresh, err := Load(l.path)
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

// Path returns the file the ledger saves to.
func (l *Ledger) Path() string {
	return l.path
}

// Records returns every row in ledger order, including duplicates and rows
// without an email. The pointers are live: mutations are picked up by Save.
func (l *Ledger) Records() []*models.ContactRecord {
	out := make([]*models.ContactRecord, len(l.rows))
	for i, rw := range l.rows {
		out[i] = rw.rec
	}
	return out
}

// Len returns the number of rows.
func (l *Ledger) Len() int {
	return len(l.rows)
}

// Get returns the keyed record for an email, or nil.
func (l *Ledger) Get(email string) *models.ContactRecord {
	rw, ok := l.index[NormalizeEmail(email)]
	if !ok {
		return nil
	}
	return rw.rec
}

// Pending returns keyed records that have an email and were never attempted, in
// ledger order, up to limit. A limit <= 0 returns all of them.
func (l *Ledger) Pending(limit int) []*models.ContactRecord {
	var out []*models.ContactRecord
	for _, rw := range l.rows {
		rec := rw.rec
		if rec.Email == "" || rec.Synced() {
			continue
		}
		if l.index[rec.Email] != rw {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Duplicates lists emails that occur on more than one row. Only the first row
// of each is keyed and synced.
func (l *Ledger) Duplicates() []string {
	return append([]string(nil), l.dups...)
}

// Header returns the column names Save would write.
func (l *Ledger) Header() []string {
	header, _ := l.outputLayout()
	return header
}

// outputLayout returns the header to write plus, for each appended column, the
// field it carries (or -1 with the Extra key in the header).
func (l *Ledger) outputLayout() ([]string, []field) {
	header := append([]string(nil), l.header...)
	var appended []field

	for f := field(0); f < numFields; f++ {
		if l.cols[f] >= 0 {
			continue
		}
		for _, rw := range l.rows {
			if formatField(rw.rec, f) != "" {
				header = append(header, f.canonical())
				appended = append(appended, f)
				break
			}
		}
	}

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var extras []string
	for _, rw := range l.rows {
		for k := range rw.rec.Extra {
			if !present[k] {
				present[k] = true
				extras = append(extras, k)
			}
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		header = append(header, k)
		appended = append(appended, -1)
	}

	return header, appended
}

func (l *Ledger) encodeRow(rw *row, header []string, appended []field) []string {
	out := make([]string, 0, len(header))
	bound := l.boundColumns()

	for i, name := range l.header {
		var raw string
		if i < len(rw.raw) {
			raw = rw.raw[i]
		}
		switch {
		case bound[i]:
			f := l.fieldAt(i)
			current := formatField(rw.rec, f)
			if current == formatField(&rw.loaded, f) {
				out = append(out, raw)
			} else {
				out = append(out, current)
			}
		case l.shadowed(i):
			out = append(out, raw)
		default:
			out = append(out, rw.rec.Extra[name])
		}
	}

	for j, f := range appended {
		if f >= 0 {
			out = append(out, formatField(rw.rec, f))
			continue
		}
		out = append(out, rw.rec.Extra[header[len(l.header)+j]])
	}
	return out
}

func (l *Ledger) fieldAt(col int) field {
	for f := field(0); f < numFields; f++ {
		if l.cols[f] == col {
			return f
		}
	}
	return -1
}

// Save rewrites the ledger file in place.
func (l *Ledger) Save() error {
	return l.SaveAs(l.path)
}

// SaveAs writes the whole table to a temp file next to path, syncs it, and renames
// it over path. On any failure the previous file is untouched and the returned
// error wraps ErrPersistence.
func (l *Ledger) SaveAs(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no ledger path", ErrPersistence)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := l.write(tmp); err != nil {
		return fmt.Errorf("%w: failed to write ledger: %w", ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync ledger: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close ledger: %w", ErrPersistence, err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: failed to replace ledger: %w", ErrPersistence, err)
	}
	committed = true

	if l.path == "" {
		l.path = path
	}
	return nil
}

func (l *Ledger) write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if l.bom {
		if _, err := bw.Write(utf8BOM); err != nil {
			return err
		}
	}

	header, appended := l.outputLayout()
	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rw := range l.rows {
		if err := cw.Write(l.encodeRow(rw, header, appended)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
