package vcf

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLine parses a single tab-separated VCF data line.
// Columns past INFO (FORMAT and samples) are ignored.
func ParseLine(line string) (*Variant, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) < len(FixedColumns) {
		return nil, fmt.Errorf("expected at least %d columns, found %d", len(FixedColumns), len(fields))
	}
	for i := 0; i < len(FixedColumns); i++ {
		fields[i] = strings.TrimSpace(fields[i])
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || pos < 1 {
		return nil, fmt.Errorf("invalid position: %q", fields[1])
	}

	ref := fields[3]
	if !isNucleotides(ref) {
		return nil, fmt.Errorf("invalid reference allele: %q", ref)
	}

	alts := strings.Split(fields[4], ",")
	for _, alt := range alts {
		if alt == "" {
			return nil, fmt.Errorf("empty alternate allele in %q", fields[4])
		}
	}

	info, err := ParseInfo(fields[7])
	if err != nil {
		return nil, err
	}

	id := fields[2]
	if id == "" {
		id = Missing
	}

	return &Variant{
		Chrom: fields[0],
		Pos:   pos,
		ID:    id,
		Ref:   ref,
		Alts:  alts,
		Info:  info,
	}, nil
}

// ParseInfo parses the INFO column into a map.
// Every entry must be a KEY=VALUE pair; flags and duplicate keys are rejected.
func ParseInfo(info string) (map[string]string, error) {
	result := make(map[string]string)
	if info == "" || info == Missing {
		return result, nil
	}

	for _, kv := range strings.Split(info, ";") {
		parts := strings.Split(kv, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("fail to parse info field: %q", kv)
		}
		if _, dup := result[parts[0]]; dup {
			return nil, fmt.Errorf("duplicate info key: %q", parts[0])
		}
		result[parts[0]] = parts[1]
	}

	return result, nil
}

func isNucleotides(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		default:
			return false
		}
	}
	return true
}

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int64
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vcf parse error at line %d: %s: %v", e.Line, e.Message, e.Err)
	}
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
