package db

import "gorm.io/gorm"

// ScopeTenant restricts a gorm query to one tenant. A nil tenant matches
// rows whose tenant column is NULL; SQL "=" never matches NULL, so the two
// cases need different predicates.
func ScopeTenant(column string, tenant *int64) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if tenant == nil {
			return tx.Where(column + " IS NULL")
		}
		return tx.Where(column+" = ?", *tenant)
	}
}
