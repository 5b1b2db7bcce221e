package db

// Post 是 posts 表的一行，身份为 (CategorySlug, Slug)。
// Views/Likes 只在索引中累计，同步时不会被磁盘上的值覆盖。
type Post struct {
	ID           uint   `gorm:"primaryKey"`
	CategorySlug string `gorm:"column:category_slug"`
	Slug         string `gorm:"column:slug"`
	Title        string
	Date         string
	Views        int64
	Likes        int64
	Author       string
	Summary      string
	Tags         string
	ContentPath  string `gorm:"column:content_path"`
	UpdatedAt    string `gorm:"column:updated_at;autoUpdateTime:false"`
	ReadingTime  int    `gorm:"column:reading_time"`
	// SearchText 是标题与标签的小写副本，供大小写无关的搜索使用
	SearchText   string `gorm:"column:search_text"`

	// CategoryName 来自 categories 表的联表查询，不落库
	CategoryName string `gorm:"->;-:migration"`
}

func (Post) TableName() string { return "posts" }

// PostKey identifies a post row.
type PostKey struct {
	CategorySlug string
	Slug         string
}

// PostFields 描述一次 upsert 需要写入的列，nil 表示保留原值。
type PostFields struct {
	Title       *string
	Date        *string
	Views       *int64
	Likes       *int64
	Author      *string
	Summary     *string
	Tags        *string
	ContentPath *string
	UpdatedAt   *string
	ReadingTime *int
}

func (f PostFields) apply(p *Post) {
	if f.Title != nil {
		p.Title = *f.Title
	}
	if f.Date != nil {
		p.Date = *f.Date
	}
	if f.Views != nil {
		p.Views = *f.Views
	}
	if f.Likes != nil {
		p.Likes = *f.Likes
	}
	if f.Author != nil {
		p.Author = *f.Author
	}
	if f.Summary != nil {
		p.Summary = *f.Summary
	}
	if f.Tags != nil {
		p.Tags = *f.Tags
	}
	if f.ContentPath != nil {
		p.ContentPath = *f.ContentPath
	}
	if f.UpdatedAt != nil {
		p.UpdatedAt = *f.UpdatedAt
	}
	if f.ReadingTime != nil {
		p.ReadingTime = *f.ReadingTime
	}
	p.SearchText = searchText(p.Title, p.Tags)
}
