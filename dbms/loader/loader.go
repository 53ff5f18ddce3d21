// Package loader produces key-value pairs for bulk loading: parsed from
// delimited text, or generated with faker.
package loader

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/go-faker/faker/v4"
	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
)

// DefaultSep separates key and value on a line.
const DefaultSep = ":"

// maxLine bounds a single input line: a maximal key, a maximal value and the
// separator.
const maxLine = btpage.MaxKeySize + btpage.MaxValueSize + 64

// Result is the outcome of reading a pairs file.
type Result struct {
	Pairs []btpage.KeyValue
	// Skipped counts non-blank lines without a separator.
	Skipped int
}

// ReadPairs parses key<sep>value lines. The line is split at the first sep,
// so values may contain it. Line endings (\n or \r\n) are stripped and blank
// lines ignored.
func ReadPairs(r io.Reader, sep string) (Result, error) {
	if sep == "" {
		sep = DefaultSep
	}
	var res Result
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := bytes.TrimSuffix(sc.Bytes(), []byte("\r"))
		if len(line) == 0 {
			continue
		}
		k, v, ok := bytes.Cut(line, []byte(sep))
		if !ok {
			res.Skipped++
			continue
		}
		res.Pairs = append(res.Pairs, btpage.KeyValue{Key: bytes.Clone(k), Value: bytes.Clone(v)})
	}
	if err := sc.Err(); err != nil {
		return res, errors.Wrapf(err, "loader: line %d", len(res.Pairs)+res.Skipped+1)
	}
	return res, nil
}

// ReadFile is ReadPairs over the file at path.
func ReadFile(path, sep string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "loader: open")
	}
	defer f.Close()
	return ReadPairs(f, sep)
}

// Fake returns n pairs of random words. Keys may repeat.
func Fake(n int) []btpage.KeyValue {
	pairs := make([]btpage.KeyValue, n)
	for i := range pairs {
		pairs[i] = btpage.KeyValue{
			Key:   []byte(faker.Word() + faker.Word()),
			Value: []byte(faker.Word() + faker.Word()),
		}
	}
	return pairs
}
