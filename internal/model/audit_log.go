package model

import "time"

// AuditLog is one audit trail entry. Seq orders the trail and is taken from
// AuditCounter inside the writing transaction.
type AuditLog struct {
	Seq           int64  `gorm:"primaryKey;autoIncrement:false"`
	ID            string `gorm:"uuid;not null;uniqueIndex"`
	Action        string `gorm:"not null"`
	Kind          string `gorm:"index"`
	Actor         string `gorm:"index"`
	DocumentID    string `gorm:"index"`
	DocumentTitle string
	Status        string
	At            time.Time
	Details       string // json encoded details, empty when absent
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditCounter holds the last assigned audit seq. Its row lock is held until
// the appending transaction commits, so seq values become visible in order.
type AuditCounter struct {
	Name string `gorm:"primaryKey"`
	Seq  int64  `gorm:"not null"`
}

func (AuditCounter) TableName() string {
	return "audit_counters"
}

const AuditCounterName = "audit"
