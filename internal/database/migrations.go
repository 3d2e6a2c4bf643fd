package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeIdentities = "2026-10-01_normalize_identities"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeIdentities, apply: normalizeIdentities},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeIdentities lowercases and trims usernames and alias addresses
// written before lookups became case-insensitive. When several rows share a
// normalized identity, only the oldest row (lowest rowid) is rewritten, and
// only if no row already holds that identity; the rest are left untouched.
func normalizeIdentities(tx *gorm.DB) error {
	if err := tx.Exec(`UPDATE users SET username = LOWER(TRIM(username))
		WHERE username <> LOWER(TRIM(username))
		AND LOWER(TRIM(username)) NOT IN (SELECT username FROM users)
		AND rowid = (SELECT MIN(u2.rowid) FROM users u2
			WHERE LOWER(TRIM(u2.username)) = LOWER(TRIM(users.username)))`).Error; err != nil {
		return err
	}
	if err := tx.Exec(`UPDATE aliases SET address = LOWER(TRIM(address))
		WHERE address <> LOWER(TRIM(address))
		AND LOWER(TRIM(address)) NOT IN (SELECT address FROM aliases)
		AND rowid = (SELECT MIN(a2.rowid) FROM aliases a2
			WHERE LOWER(TRIM(a2.address)) = LOWER(TRIM(aliases.address)))`).Error; err != nil {
		return err
	}
	return tx.Exec(`UPDATE aliases SET target = LOWER(TRIM(target))
		WHERE target <> LOWER(TRIM(target))`).Error
}
