package main

import (
	"expensemgr/models"

	"gorm.io/gorm"
)

// writeAudit appends an audit row using tx so it commits with the change it records.
func writeAudit(tx *gorm.DB, userID uint, action string, entityID *uint) error {
	return tx.Create(&models.AuditLog{UserID: userID, Action: action, EntityID: entityID}).Error
}
