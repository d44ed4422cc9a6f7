// Package csvfile reads the translation queue and maintains the
// append-only output store that makes translation runs resumable.
//
// Both files share the queue columns:
//
//	key_name,key_id,languages,translation_id,translation
//
// The output store adds a "translated" column holding one value per
// language, joined with "|". Languages and translation ids are joined
// with ",".
package csvfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Column names.
const (
	ColKeyName       = "key_name"
	ColKeyID         = "key_id"
	ColLanguages     = "languages"
	ColTranslationID = "translation_id"
	ColSource        = "translation"
	ColTranslated    = "translated"
)

const (
	listSep       = ","
	translatedSep = "|"
)

// QueueHeader is the column order of a freshly exported queue.
var QueueHeader = []string{ColKeyName, ColKeyID, ColLanguages, ColTranslationID, ColSource}

// OutputHeader is the column order of a fresh output store.
var OutputHeader = append(append([]string{}, QueueHeader...), ColTranslated)

// ErrMissingColumn is returned for rows lacking a required field.
var ErrMissingColumn = errors.New("missing column")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ---------------------------------------------------------------------------
// Rows and records
// ---------------------------------------------------------------------------

// Row is one CSV line addressed by column name. Columns beyond the end of a
// short line are absent, which is different from present but empty.
type Row struct {
	values map[string]string
}

// NewRow builds a row from a header and the raw fields of one line.
func NewRow(header, fields []string) Row {
	values := make(map[string]string, len(header))
	for i, col := range header {
		if i >= len(fields) {
			break
		}
		values[col] = fields[i]
	}
	return Row{values: values}
}

// Get returns the column value and whether the column is present.
func (r Row) Get(col string) (string, bool) {
	v, ok := r.values[col]
	return v, ok
}

// Value returns the column value or "".
func (r Row) Value(col string) string {
	return r.values[col]
}

// Map returns a copy of the row's values.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Record is one unit of translation work.
type Record struct {
	KeyID          string
	KeyName        string
	Languages      []string
	TranslationIDs []string
	SourceText     string
	TranslatedText []string
}

// Record validates the row and converts it. key_id, translation and
// languages must be present; key_id must not be blank.
func (r Row) Record() (Record, error) {
	for _, col := range []string{ColKeyID, ColSource, ColLanguages} {
		if _, ok := r.values[col]; !ok {
			return Record{}, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}
	keyID := strings.TrimSpace(r.values[ColKeyID])
	if keyID == "" {
		return Record{}, fmt.Errorf("%w %q: empty value", ErrMissingColumn, ColKeyID)
	}
	return Record{
		KeyID:          keyID,
		KeyName:        r.values[ColKeyName],
		Languages:      SplitList(r.values[ColLanguages]),
		TranslationIDs: SplitList(r.values[ColTranslationID]),
		SourceText:     r.values[ColSource],
	}, nil
}

// SplitList splits a comma-joined column, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listSep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(items []string) string {
	return strings.Join(items, listSep)
}

// SplitTranslated splits the pipe-joined translated column. Unlike
// SplitList it keeps empty entries: they are untranslated languages.
func SplitTranslated(s string) []string {
	return strings.Split(s, translatedSep)
}

// JoinTranslated joins per-language results for the translated column.
func JoinTranslated(items []string) string {
	return strings.Join(items, translatedSep)
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Table is a parsed CSV file.
type Table struct {
	Header    []string
	Rows      []Row
	Delimiter rune
}

// DetectDelimiter picks the most frequent of , ; TAB | on the first line,
// ignoring quoted text. Ties keep that order; the default is ','.
func DetectDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	candidates := []rune{',', ';', '\t', '|'}
	counts := make(map[rune]int, len(candidates))
	inQuotes := false
	for _, r := range string(sample) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}
	best, bestCount := ',', 0
	for _, c := range candidates {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// Read parses CSV data, detecting the delimiter from the header line.
func Read(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(len(utf8BOM)); bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	peek, _ := br.Peek(4096)

	t := &Table{Delimiter: DetectDelimiter(peek)}
	cr := csv.NewReader(br)
	cr.Comma = t.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t.Header = header

	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		t.Rows = append(t.Rows, NewRow(header, fields))
	}
	return t, nil
}

// ReadFile reads and parses a CSV file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

// CompletedKeys returns the set of key_id values already in the output
// store. Rows cut short before the translated column do not count. A
// missing or unparsable store yields an empty set; the error is returned
// for logging only.
func CompletedKeys(path string) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	t, err := ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return done, nil
		}
		return done, err
	}
	needTranslated := slices.Contains(t.Header, ColTranslated)
	for _, row := range t.Rows {
		if _, ok := row.Get(ColTranslated); needTranslated && !ok {
			continue
		}
		if id := strings.TrimSpace(row.Value(ColKeyID)); id != "" {
			done[id] = struct{}{}
		}
	}
	return done, nil
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Output is the append-only output store. Every Append is flushed and
// synced before it returns.
type Output struct {
	path   string
	f      *os.File
	w      *csv.Writer
	header []string
}

// OpenOutput opens path for appending. The header is written only when
// the file is empty; an existing file's header and delimiter are reused.
func OpenOutput(path string, header []string) (*Output, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening output %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat output %s: %w", path, err)
	}

	size, err := dropTornRow(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	o := &Output{path: path, f: f}
	delim := ','

	if size > 0 {
		existing, err := readHeader(f)
		if err == nil && len(existing.Header) > 0 {
			header = existing.Header
			delim = existing.Delimiter
		}
	}

	o.header = header
	o.w = csv.NewWriter(f)
	o.w.Comma = delim

	if size == 0 {
		if err := o.write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return o, nil
}

func readHeader(f *os.File) (*Table, error) {
	buf := make([]byte, 8192)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	buf = buf[:n]
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		buf = buf[:i+1]
	}
	return Read(bytes.NewReader(buf))
}

// dropTornRow truncates the store after its last complete line when an
// interrupted write left a partial row at the end, and returns the new
// size. The partial row's key is then translated again.
func dropTornRow(f *os.File, size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("reading output tail: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return 0, fmt.Errorf("reading output: %w", err)
	}
	keep := lastLineEnd(data)
	if err := f.Truncate(keep); err != nil {
		return 0, fmt.Errorf("repairing output tail: %w", err)
	}
	return keep, nil
}

// lastLineEnd returns the offset just past the last CSV record ending in a
// newline. Newlines inside quoted fields do not end a record.
func lastLineEnd(data []byte) int64 {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = DetectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var keep int64
	for {
		if _, err := cr.Read(); err != nil {
			break
		}
		if end := cr.InputOffset(); end > 0 && data[end-1] == '\n' {
			keep = end
		}
	}
	return keep
}

// Header returns the column order rows are written in.
func (o *Output) Header() []string { return o.header }

// Append writes one row with the given column values, then flushes and
// syncs. Columns not in values are written empty.
func (o *Output) Append(values map[string]string) error {
	fields := make([]string, len(o.header))
	for i, col := range o.header {
		fields[i] = values[col]
	}
	return o.write(fields)
}

func (o *Output) write(fields []string) error {
	if err := o.w.Write(fields); err != nil {
		return fmt.Errorf("writing %s: %w", o.path, err)
	}
	o.w.Flush()
	if err := o.w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", o.path, err)
	}
	if err := o.f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", o.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (o *Output) Close() error {
	return o.f.Close()
}

// WriteFile writes a complete comma-separated CSV file (reports),
// replacing any existing one.
func WriteFile(path string, header []string, rows []map[string]string) error {
	return writeAtomic(path, ',', header, func(w *csv.Writer) error {
		fields := make([]string, len(header))
		for _, row := range rows {
			for i, col := range header {
				fields[i] = row[col]
			}
			if err := w.Write(fields); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace rewrites path with the table's header, rows and delimiter.
func Replace(path string, t *Table) error {
	delim := t.Delimiter
	if delim == 0 {
		delim = ','
	}
	return writeAtomic(path, delim, t.Header, func(w *csv.Writer) error {
		fields := make([]string, len(t.Header))
		for _, row := range t.Rows {
			for i, col := range t.Header {
				fields[i] = row.Value(col)
			}
			if err := w.Write(fields); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeAtomic writes to a synced temporary file in the same directory and
// renames it over path, so readers see either the old or the new file.
func writeAtomic(path string, delim rune, header []string, body func(*csv.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = f.Chmod(0644); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Comma = delim
	if err = w.Write(header); err != nil {
		return err
	}
	if err = body(w); err != nil {
		return err
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
