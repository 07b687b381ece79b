package repository

import "gorm.io/gorm/clause"

// lockingForUpdate 行级悲观锁子句
func lockingForUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}
