package db

// Category 定义了分类模型，Slug 同时是磁盘上的目录名
type Category struct {
	ID          uint   `gorm:"primaryKey"`
	Slug        string `gorm:"column:slug"`
	Name        string
	Description string
	SortOrder   int   `gorm:"column:sort_order"`
	PostCount   int64 `gorm:"->;-:migration"`
}

func (Category) TableName() string { return "categories" }

// CategoryPatch 仅更新非 nil 字段。
type CategoryPatch struct {
	Name        *string
	Description *string
	SortOrder   *int
}
