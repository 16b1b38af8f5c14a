package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Names of the manifests inside a balanced folder
const (
	TrainManifest = "train_map.txt"
	TestManifest  = "test_map.txt"
)

var ErrNotBalanced = errors.New("No train_map.txt file found")

// Entry is one line of a train or test manifest
type Entry struct {
	Path  string
	Class int
}

// ManifestWriter appends entries to a tab separated manifest
type ManifestWriter struct {
	file *os.File
	buf  *bufio.Writer
	n    int
}

func CreateManifest(filename string) (*ManifestWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &ManifestWriter{
		file: f,
		buf:  bufio.NewWriter(f),
	}, nil
}

func (w *ManifestWriter) Append(e Entry) error {
	_, err := fmt.Fprintf(w.buf, "%v\t%v\n", e.Path, e.Class)
	if err == nil {
		w.n++
	}
	return err
}

// Number of entries written
func (w *ManifestWriter) Len() int {
	return w.n
}

// Close flushes and closes the file. It is safe to call Close more than once.
func (w *ManifestWriter) Close() error {
	if w.file == nil {
		return nil
	}
	errFlush := w.buf.Flush()
	errClose := w.file.Close()
	w.file = nil
	if errFlush != nil {
		return errFlush
	}
	return errClose
}

// ReadManifest reads all entries of a train or test manifest
func ReadManifest(filename string) ([]Entry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseManifest(f)
}

func parseManifest(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	entries := []Entry{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if len(row) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("Line %v: expected 2 columns, but found %v", line, len(row))
		}
		class, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			line, _ := reader.FieldPos(1)
			return nil, fmt.Errorf("Line %v: invalid class index '%v'", line, row[1])
		}
		entries = append(entries, Entry{Path: row[0], Class: class})
	}
	return entries, nil
}

// ClassCount returns the number of distinct classes in the train manifest of a balanced folder
func ClassCount(folder string) (int, error) {
	folder = strings.TrimRight(folder, "/")
	entries, err := ReadManifest(filepath.Join(folder, TrainManifest))
	if err != nil {
		return 0, notBalancedError(folder, err)
	}
	return countClasses(entries), nil
}

func countClasses(entries []Entry) int {
	classes := map[int]bool{}
	for _, e := range entries {
		classes[e.Class] = true
	}
	return len(classes)
}

func notBalancedError(folder string, err error) error {
	return fmt.Errorf("%w in path %v. Did you create a dataset with 'autcar balance'? (%v)", ErrNotBalanced, folder, err)
}
