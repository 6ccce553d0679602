package importexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/remote"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const maxDelimiterSampleRecords = 20

// vocabularyNamespace seeds name-based ids for rows imported without one, so
// re-importing the same file updates rows instead of duplicating them.
var vocabularyNamespace = uuid.MustParse("5b0c8f9e-3d4a-4c41-9a57-2f1f6f1e8a10")

// VocabularyID is the stable id of a source word within a category.
func VocabularyID(source, category string) string {
	key := strings.ToLower(strings.TrimSpace(category)) + "\x00" + strings.ToLower(strings.TrimSpace(source))
	return uuid.NewSHA1(vocabularyNamespace, []byte(key)).String()
}

// ParseVocabularyCSV reads rows of source,target[,category[,id]].
func ParseVocabularyCSV(data []byte) ([]db.VocabularyWord, int, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	delimiter := detectCSVDelimiter(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	var words []db.VocabularyWord
	skipped := 0
	checkedHeader := false

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, err
		}
		if isEmptyCSVRecord(record) {
			skipped++
			continue
		}
		if !checkedHeader {
			checkedHeader = true
			if isHeaderRecord(record) {
				continue
			}
		}
		if len(record) < 2 {
			skipped++
			continue
		}
		source := strings.TrimSpace(record[0])
		target := strings.TrimSpace(record[1])
		if source == "" || target == "" {
			skipped++
			continue
		}
		category := field(record, 2)
		id := field(record, 3)
		if id == "" {
			id = VocabularyID(source, category)
		}
		words = append(words, db.VocabularyWord{
			ID:         id,
			SourceText: source,
			TargetText: target,
			Category:   category,
		})
	}

	return words, skipped, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func detectCSVDelimiter(data []byte) rune {
	candidates := []rune{',', '\t', ';'}
	bestDelimiter := candidates[0]
	bestScore := -1

	for _, delimiter := range candidates {
		score, err := scoreDelimiter(data, delimiter, maxDelimiterSampleRecords)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestDelimiter = delimiter
		}
	}

	if bestScore <= 0 {
		return ','
	}
	return bestDelimiter
}

func scoreDelimiter(data []byte, delimiter rune, maxRecords int) (int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	counts := make(map[int]int)
	recordsSeen := 0

	for recordsSeen < maxRecords {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if isEmptyCSVRecord(record) {
			continue
		}
		recordsSeen++

		if len(record) < 2 {
			continue
		}
		counts[len(record)]++
	}

	best := 0
	for _, score := range counts {
		if score > best {
			best = score
		}
	}
	return best, nil
}

func isEmptyCSVRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func isHeaderRecord(record []string) bool {
	if len(record) < 2 {
		return false
	}
	left := strings.ToLower(strings.TrimSpace(record[0]))
	right := strings.ToLower(strings.TrimSpace(record[1]))
	headers := map[string]struct{}{
		"source": {},
		"target": {},
		"en":     {},
		"he":     {},
	}
	_, leftOK := headers[left]
	_, rightOK := headers[right]
	return leftOK && rightOK
}

// SeedVocabulary upserts rows into the remote vocabulary table. Rows are
// independent; the count of stored rows is returned with every failure.
func SeedVocabulary(ctx context.Context, rs remote.Store, words []db.VocabularyWord) (int, error) {
	now := time.Now().UTC()
	stored := 0
	var errs []error
	for _, word := range words {
		if word.UpdatedAt.IsZero() {
			word.UpdatedAt = now
		}
		row, err := remote.RowFrom(word)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", word.ID, err))
			continue
		}
		if err := rs.Upsert(ctx, db.TableVocabularyWords, row); err != nil {
			errs = append(errs, err)
			continue
		}
		stored++
	}
	return stored, errors.Join(errs...)
}

func BuildExportCSV(words []db.VocabularyWord) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.Write(utf8BOM); err != nil {
		return nil, err
	}

	writer := csv.NewWriter(&buf)
	writer.UseCRLF = true

	for _, word := range words {
		if err := writer.Write([]string{word.SourceText, word.TargetText, word.Category}); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ExportFilename(now time.Time) string {
	return fmt.Sprintf("learned-words-%s.csv", now.Format("20060102"))
}

func SortForExport(words []db.VocabularyWord) {
	sort.Slice(words, func(i, j int) bool {
		if words[i].SourceText == words[j].SourceText {
			return words[i].ID < words[j].ID
		}
		return words[i].SourceText < words[j].SourceText
	})
}
