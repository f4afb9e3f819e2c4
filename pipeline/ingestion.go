package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"cardiopredict/clinical"
)

// Sample is one labelled dataset row.
type Sample struct {
	Record clinical.Record
	Label  int
	Line   int // 1-based line in the source file, header included
}

// Dataset column names, matched case-insensitively.
const (
	ColumnAge            = "Age"
	ColumnSex            = "Sex"
	ColumnChestPainType  = "ChestPainType"
	ColumnRestingBP      = "RestingBP"
	ColumnCholesterol    = "Cholesterol"
	ColumnFastingBS      = "FastingBS"
	ColumnRestingECG     = "RestingECG"
	ColumnMaxHR          = "MaxHR"
	ColumnExerciseAngina = "ExerciseAngina"
	ColumnOldpeak        = "Oldpeak"
	ColumnSTSlope        = "ST_Slope"
	ColumnHeartDisease   = "HeartDisease"
)

func requiredColumns() []string {
	return []string{
		ColumnAge, ColumnSex, ColumnChestPainType, ColumnRestingBP, ColumnCholesterol,
		ColumnFastingBS, ColumnRestingECG, ColumnMaxHR, ColumnExerciseAngina,
		ColumnOldpeak, ColumnSTSlope, ColumnHeartDisease,
	}
}

// DatasetReader parses the heart disease CSV export into samples. Encoding is
// "utf-8" (default, BOM tolerated), "latin1" or "windows-1252".
type DatasetReader struct {
	Encoding string
	Comma    rune
}

func NewDatasetReader(encodingName string) *DatasetReader {
	return &DatasetReader{Encoding: encodingName, Comma: ','}
}

// ReadFile opens path and reads every sample from it.
func (dr *DatasetReader) ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := dr.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func (dr *DatasetReader) Read(r io.Reader) ([]Sample, error) {
	decoder, err := decoderFor(dr.Encoding)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(transform.NewReader(r, decoder))
	if dr.Comma != 0 {
		cr.Comma = dr.Comma
	}
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, err
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		sample, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sample.Line = line
		samples = append(samples, sample)
	}
	if len(samples) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return samples, nil
}

// decoderFor returns a transformer to UTF-8. The UTF-8 decoder also strips a
// byte order mark, including a UTF-16 one, which spreadsheet exports add.
func decoderFor(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "gbk", "gb18030":
		return simplifiedchinese.GB18030.NewDecoder(), nil
	}
	return nil, fmt.Errorf("unsupported dataset encoding %q", name)
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns() {
		if _, ok := index[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset header missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (Sample, error) {
	get := func(column string) string {
		i := index[strings.ToLower(column)]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var s Sample
	var err error

	if s.Record.Age, err = parseInt(ColumnAge, get(ColumnAge)); err != nil {
		return s, err
	}
	if s.Record.RestingBP, err = parseInt(ColumnRestingBP, get(ColumnRestingBP)); err != nil {
		return s, err
	}
	if s.Record.Cholesterol, err = parseInt(ColumnCholesterol, get(ColumnCholesterol)); err != nil {
		return s, err
	}
	if s.Record.MaxHeartRate, err = parseInt(ColumnMaxHR, get(ColumnMaxHR)); err != nil {
		return s, err
	}
	if s.Record.Oldpeak, err = strconv.ParseFloat(get(ColumnOldpeak), 64); err != nil {
		return s, fmt.Errorf("%s: %w", ColumnOldpeak, err)
	}

	if s.Record.Sex, err = parseSex(get(ColumnSex)); err != nil {
		return s, err
	}
	if s.Record.FastingBloodSugar, err = parseYesNo(ColumnFastingBS, get(ColumnFastingBS)); err != nil {
		return s, err
	}
	if s.Record.ExerciseAngina, err = parseYesNo(ColumnExerciseAngina, get(ColumnExerciseAngina)); err != nil {
		return s, err
	}
	s.Record.ChestPainType = clinical.ChestPainType(get(ColumnChestPainType))
	s.Record.RestingECG = clinical.RestingECG(get(ColumnRestingECG))
	s.Record.STSlope = clinical.STSlope(get(ColumnSTSlope))

	switch get(ColumnHeartDisease) {
	case "0":
		s.Label = 0
	case "1":
		s.Label = 1
	default:
		return s, fmt.Errorf("%s: expected 0 or 1, got %q", ColumnHeartDisease, get(ColumnHeartDisease))
	}
	return s, nil
}

func parseInt(column, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		// some exports write integers as 140.0
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("%s: %w", column, err)
		}
		v = int(f)
	}
	return v, nil
}

func parseSex(value string) (clinical.Sex, error) {
	switch value {
	case "M", "Male":
		return clinical.SexMale, nil
	case "F", "Female":
		return clinical.SexFemale, nil
	}
	return "", fmt.Errorf("%s: unknown value %q", ColumnSex, value)
}

func parseYesNo(column, value string) (clinical.YesNo, error) {
	switch value {
	case "Y", "Yes", "1":
		return clinical.Yes, nil
	case "N", "No", "0":
		return clinical.No, nil
	}
	return "", fmt.Errorf("%s: unknown value %q", column, value)
}
