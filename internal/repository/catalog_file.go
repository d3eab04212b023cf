package repository

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// CatalogFile is the YAML layout shared by the offline client and the seeder.
type CatalogFile struct {
	Classes   []model.Class           `yaml:"classes"`
	Exams     []model.Exam            `yaml:"exams"`
	Questions []model.Question        `yaml:"questions"`
	Packages  []model.QuestionPackage `yaml:"packages"`
	Results   []model.Result          `yaml:"results,omitempty"`
}

// LoadCatalogFile reads and validates a catalog file. Missing ids are filled
// with fresh UUIDs and tokens are upper-cased.
func LoadCatalogFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if err := f.normalize(); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the file atomically.
func (f *CatalogFile) Save(path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

func (f *CatalogFile) normalize() error {
	var errs []error
	for i := range f.Classes {
		if f.Classes[i].ID == "" {
			f.Classes[i].ID = uuid.NewString()
		}
	}
	for i := range f.Questions {
		q := &f.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if err := q.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("question %s: %w", q.ID, err))
		}
	}
	for i := range f.Packages {
		if f.Packages[i].ID == "" {
			f.Packages[i].ID = uuid.NewString()
		}
	}
	for i := range f.Exams {
		e := &f.Exams[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.Token = model.NormalizeToken(e.Token)
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("exam %s: %w", e.ID, err))
		}
	}
	for i := range f.Results {
		if f.Results[i].ID == "" {
			f.Results[i].ID = uuid.NewString()
		}
	}
	return errors.Join(errs...)
}
