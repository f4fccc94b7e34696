package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/cryguy/edgefn/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretModel is one tenant secret.
type SecretModel struct {
	Tenant    string `gorm:"primaryKey;size:128"`
	Key       string `gorm:"primaryKey;size:256"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (SecretModel) TableName() string { return "secrets" }

// SQL resolves secrets from the secrets table.
type SQL struct {
	db *gorm.DB
}

var _ core.SecretResolver = (*SQL)(nil)

// NewSQL migrates the secrets table and returns the resolver.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&SecretModel{}); err != nil {
		return nil, fmt.Errorf("secrets: migrating: %w", err)
	}
	return &SQL{db: db}, nil
}

// Resolve loads all of the tenant's secrets.
func (s *SQL) Resolve(ctx context.Context, tenant string) (core.SecretMap, error) {
	var rows []SecretModel
	if err := s.db.WithContext(ctx).Where("tenant = ?", tenant).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("secrets: loading tenant %s: %w", tenant, err)
	}
	if len(rows) == 0 {
		return nil, notFound(tenant)
	}
	out := make(core.SecretMap, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Set stores or replaces one secret.
func (s *SQL) Set(ctx context.Context, tenant, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&SecretModel{Tenant: tenant, Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("secrets: saving %s/%s: %w", tenant, key, err)
	}
	return nil
}

// Delete removes one secret.
func (s *SQL) Delete(ctx context.Context, tenant, key string) error {
	if err := s.db.WithContext(ctx).Delete(&SecretModel{}, "tenant = ? AND key = ?", tenant, key).Error; err != nil {
		return fmt.Errorf("secrets: deleting %s/%s: %w", tenant, key, err)
	}
	return nil
}
