package repository

import "gorm.io/gorm"

// maxPageSize 单页上限，防止列表接口一次拖全表
const maxPageSize = 500

// applyPagination 应用分页窗口。pageSize 不大于 0 时不分页
// （批量任务内部查询用），页码从 1 起算，非法页码回退首页。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
