package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&DocumentVersion{}, &DocumentTag{}, &ShareLink{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&AuditLog{}, &AuditCounter{}); err != nil {
		return err
	}

	var last int64
	if err := db.Model(&AuditLog{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return err
	}
	counter := AuditCounter{Name: AuditCounterName}
	if err := db.Attrs(AuditCounter{Seq: last}).FirstOrCreate(&counter).Error; err != nil {
		return err
	}

	return nil
}
