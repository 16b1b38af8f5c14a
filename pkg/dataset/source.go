package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/autcar/pkg/command"
	"github.com/cyclopcam/logs"
)

// SourceManifest is the file that the car writes into every recording folder
const SourceManifest = "training.csv"

var ErrNoTrainingFile = errors.New("No training.csv file found")
var ErrNoExamples = errors.New("No usable examples found")

// SourceExample is one retained row of a source manifest
type SourceExample struct {
	Folder string // Recording folder, without trailing slash
	Image  string // Image path, relative to Folder
	Label  string // Normalized label, eg "left_medium"
	Class  int    // Index of Label in command.Classes
}

// Path of the image on disk
func (s *SourceExample) Path() string {
	return filepath.Join(s.Folder, s.Image)
}

// Read all retained examples of a recording folder.
// Rows whose descriptor cannot be parsed are skipped, and so are rows with an excluded label.
// A missing or unparseable training.csv is an error, and so is a label that is
// neither excluded nor one of our classes.
func ReadSource(log logs.Log, folder string) ([]SourceExample, error) {
	folder = strings.TrimRight(folder, "/")
	f, err := os.Open(filepath.Join(folder, SourceManifest))
	if err != nil {
		return nil, sourceError(folder, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	examples := []SourceExample{}
	nSkipped := 0
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, sourceError(folder, err)
		}
		if len(row) < 2 {
			nSkipped++
			continue
		}
		label, err := command.ParseLabel(row[1])
		if err != nil {
			log.Debugf("Skipping %v:%v: %v", folder, line, err)
			nSkipped++
			continue
		}
		if command.IsExcluded(label) {
			continue
		}
		class, err := command.Index(label)
		if err != nil {
			return nil, fmt.Errorf("%v:%v: %w", filepath.Join(folder, SourceManifest), line, err)
		}
		examples = append(examples, SourceExample{
			Folder: folder,
			Image:  row[0],
			Label:  label,
			Class:  class,
		})
	}
	if nSkipped != 0 {
		log.Infof("Skipped %v malformed rows in %v", nSkipped, folder)
	}
	return examples, nil
}

func sourceError(folder string, err error) error {
	return fmt.Errorf("%w in folder %v. Does the path resolve to a training folder recorded by the car? (%v)", ErrNoTrainingFile, folder, err)
}
