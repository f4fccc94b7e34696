package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cryguy/edgefn/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FunctionModel is the functions table. Source is stored brotli-compressed.
type FunctionModel struct {
	Identifier string `gorm:"primaryKey;size:128"`
	Tenant     string `gorm:"size:128;index"`
	Status     string `gorm:"size:16;not null;default:draft"`
	Source     []byte `gorm:"not null"`
	SourceSize int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName implements gorm's tabler.
func (FunctionModel) TableName() string { return "functions" }

// SQL is a registry backed by gorm (SQLite or PostgreSQL).
type SQL struct {
	db *gorm.DB
}

var _ Store = (*SQL)(nil)

// NewSQL migrates the functions table and returns the registry.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&FunctionModel{}); err != nil {
		return nil, fmt.Errorf("registry: migrating: %w", err)
	}
	return &SQL{db: db}, nil
}

// Lookup loads and decompresses the function stored under identifier.
func (s *SQL) Lookup(ctx context.Context, identifier string) (*core.FunctionDefinition, error) {
	var m FunctionModel
	err := s.db.WithContext(ctx).Where("identifier = ?", identifier).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("registry: %w: %s", core.ErrFunctionNotFound, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: loading %s: %w", identifier, err)
	}
	source, err := decompress(m.Source)
	if err != nil {
		return nil, fmt.Errorf("registry: decompressing %s: %w", identifier, err)
	}
	return &core.FunctionDefinition{
		Identifier: m.Identifier,
		Tenant:     m.Tenant,
		SourceCode: source,
		Status:     core.Status(m.Status),
	}, nil
}

// Put inserts or replaces def.
func (s *SQL) Put(ctx context.Context, def *core.FunctionDefinition) error {
	if err := validate(def); err != nil {
		return err
	}
	packed, err := compress(def.SourceCode)
	if err != nil {
		return fmt.Errorf("registry: compressing %s: %w", def.Identifier, err)
	}
	m := FunctionModel{
		Identifier: def.Identifier,
		Tenant:     def.Tenant,
		Status:     string(def.Status),
		Source:     packed,
		SourceSize: len(def.SourceCode),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant", "status", "source", "source_size", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("registry: saving %s: %w", def.Identifier, err)
	}
	return nil
}

// Delete removes identifier.
func (s *SQL) Delete(ctx context.Context, identifier string) error {
	if err := s.db.WithContext(ctx).Delete(&FunctionModel{}, "identifier = ?", identifier).Error; err != nil {
		return fmt.Errorf("registry: deleting %s: %w", identifier, err)
	}
	return nil
}

// List returns all identifiers in order.
func (s *SQL) List(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&FunctionModel{}).Order("identifier").Pluck("identifier", &ids).Error; err != nil {
		return nil, fmt.Errorf("registry: listing: %w", err)
	}
	return ids, nil
}

func compress(source string) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := io.WriteString(w, source); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(packed []byte) (string, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(packed)))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
