package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/registry"
)

// ErrMissingColumn is returned when a required column is absent from the
// header row.
var ErrMissingColumn = errors.New("missing required column")

// listSeparator splits multi-valued cells such as former names.
const listSeparator = "|"

// Column names accepted for each field, first match wins.
var (
	colRawName         = []string{"raw_name", "firm_name", "name"}
	colIdentifier      = []string{"crd", "identifier", "firm_crd"}
	colFirmName        = []string{"firm_name", "name", "canonical_name"}
	colAliasName       = []string{"alias_name", "alias", "name"}
	colAliasKind       = []string{"alias_kind", "kind"}
	colFormerNames     = []string{"former_names", "fka"}
	colDBAs            = []string{"dbas", "dba"}
	colPriorIdentifier = []string{"prior_crd", "prior_identifier"}
	colPriorConfidence = []string{"prior_confidence"}
	colPriorMethod     = []string{"prior_method"}
	colUnlocked        = []string{"unlocked", "reviewed"}
	colReason          = []string{"reason"}
)

// header maps normalized column names to their index.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) index(names []string) int {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}
	return -1
}

func (h header) require(names []string) (int, error) {
	if i := h.index(names); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, names[0])
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// readRows reads a header row then calls fn for every data row with its
// 1-based line number.
func readRows(r io.Reader, fn func(h header) (func(line int, row []string) error, error)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	rowFn, err := fn(newHeader(first))
	if err != nil {
		return err
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := rowFn(line, row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// ReadInputs parses filing rows. Rows with an empty name are kept so the
// output stays aligned with the input.
func ReadInputs(r io.Reader) ([]match.InputRecord, error) {
	var inputs []match.InputRecord
	err := readRows(r, func(h header) (func(int, []string) error, error) {
		iName, err := h.require(colRawName)
		if err != nil {
			return nil, err
		}
		iFormer := h.index(colFormerNames)
		iDBA := h.index(colDBAs)
		iPrior := h.index(colPriorIdentifier)
		iConf := h.index(colPriorConfidence)
		iMethod := h.index(colPriorMethod)
		iUnlocked := h.index(colUnlocked)

		return func(line int, row []string) error {
			rec := match.InputRecord{
				RawName:     cell(row, iName),
				FormerNames: splitList(cell(row, iFormer)),
				DBAs:        splitList(cell(row, iDBA)),
			}
			if v := cell(row, iUnlocked); v != "" {
				unlocked, err := strconv.ParseBool(v)
				if err != nil {
					return fmt.Errorf("unlocked %q: %w", v, err)
				}
				rec.Unlocked = unlocked
			}
			if id := cell(row, iPrior); id != "" {
				prior, err := parsePrior(id, cell(row, iConf), cell(row, iMethod))
				if err != nil {
					return err
				}
				rec.Prior = prior
			}
			inputs = append(inputs, rec)
			return nil
		}, nil
	})
	return inputs, err
}

func parsePrior(id, confidence, method string) (*match.PriorResult, error) {
	prior := &match.PriorResult{Identifier: id}
	if confidence != "" {
		c, err := strconv.ParseFloat(confidence, 64)
		if err != nil {
			return nil, fmt.Errorf("prior confidence %q: %w", confidence, err)
		}
		prior.Confidence = c
	}
	if method != "" {
		m, err := match.ParseMethod(method)
		if err != nil {
			return nil, err
		}
		prior.Method = m
	}
	return prior, nil
}

// ReadFirms parses registry rows.
func ReadFirms(r io.Reader) ([]registry.FirmRecord, error) {
	var firms []registry.FirmRecord
	err := readRows(r, func(h header) (func(int, []string) error, error) {
		iID, err := h.require(colIdentifier)
		if err != nil {
			return nil, err
		}
		iName, err := h.require(colFirmName)
		if err != nil {
			return nil, err
		}
		return func(_ int, row []string) error {
			firms = append(firms, registry.FirmRecord{Identifier: cell(row, iID), Name: cell(row, iName)})
			return nil
		}, nil
	})
	return firms, err
}

// ReadAliases parses alias rows. The kind defaults to "former".
func ReadAliases(r io.Reader) ([]registry.Alias, error) {
	var aliases []registry.Alias
	err := readRows(r, func(h header) (func(int, []string) error, error) {
		iID, err := h.require(colIdentifier)
		if err != nil {
			return nil, err
		}
		iName, err := h.require(colAliasName)
		if err != nil {
			return nil, err
		}
		iKind := h.index(colAliasKind)
		return func(_ int, row []string) error {
			kind := cell(row, iKind)
			if kind == "" {
				kind = "former"
			}
			aliases = append(aliases, registry.Alias{Identifier: cell(row, iID), Name: cell(row, iName), Kind: kind})
			return nil
		}, nil
	})
	return aliases, err
}

// ReadOverrides parses manual override rows.
func ReadOverrides(r io.Reader) ([]match.Override, error) {
	var overrides []match.Override
	err := readRows(r, func(h header) (func(int, []string) error, error) {
		iName, err := h.require(colRawName)
		if err != nil {
			return nil, err
		}
		iID, err := h.require(colIdentifier)
		if err != nil {
			return nil, err
		}
		iReason := h.index(colReason)
		return func(_ int, row []string) error {
			overrides = append(overrides, match.Override{
				RawName:    cell(row, iName),
				Identifier: cell(row, iID),
				Reason:     cell(row, iReason),
			})
			return nil
		}, nil
	})
	return overrides, err
}

// ResultHeader is the column order written by WriteResults.
var ResultHeader = []string{
	"raw_name", "crd", "matched_canonical_name", "confidence", "method",
	"confidence_margin", "needs_review", "ambiguous", "matched_on_variant",
	"divergence", "failed",
}

// WriteResults writes one row per outcome in input order.
func WriteResults(w io.Writer, outcomes []match.Outcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ResultHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, o := range outcomes {
		r := o.Result
		margin := ""
		if r.ConfidenceMargin != nil {
			margin = strconv.FormatFloat(*r.ConfidenceMargin, 'f', 4, 64)
		}
		divergence := ""
		if o.Divergence != nil {
			divergence = o.Divergence.String()
		}

		row := []string{
			r.RawName,
			r.Identifier,
			r.MatchedCanonicalName,
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			r.Method.String(),
			margin,
			strconv.FormatBool(r.NeedsReview),
			strconv.FormatBool(r.Ambiguous),
			r.MatchedOnVariant,
			divergence,
			strconv.FormatBool(o.Failed),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %q: %w", r.RawName, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadInputsFile opens path and parses it with ReadInputs.
func ReadInputsFile(path string) ([]match.InputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()
	return ReadInputs(f)
}

// ReadFirmsFile opens path and parses it with ReadFirms.
func ReadFirmsFile(path string) ([]registry.FirmRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()
	return ReadFirms(f)
}

// ReadAliasesFile opens path and parses it with ReadAliases.
func ReadAliasesFile(path string) ([]registry.Alias, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()
	return ReadAliases(f)
}

// ReadOverridesFile opens path and parses it with ReadOverrides.
func ReadOverridesFile(path string) ([]match.Override, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()
	return ReadOverrides(f)
}

// WriteResultsFile creates path and writes outcomes to it.
func WriteResultsFile(path string, outcomes []match.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if err := WriteResults(f, outcomes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
