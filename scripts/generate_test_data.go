package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/sitelog/internal/config"
	"github.com/sitelog/internal/db"
	"github.com/sitelog/internal/filestore"
	"github.com/sitelog/internal/service"
)

type seedCategory struct {
	slug        string
	name        string
	description string
}

type seedPost struct {
	category string
	slug     string
	title    string
	date     string
	tags     []string
	content  string
}

var seedCategories = []seedCategory{
	{slug: "tech", name: "技术", description: "Go、数据库与 Web 开发"},
	{slug: "thinking", name: "思考", description: "工程实践与长期主义"},
	{slug: "tutorial", name: "教程", description: "手把手的上手指南"},
}

var seedPosts = []seedPost{
	{
		category: "tech",
		slug:     "go-web-service",
		title:    "使用Go语言构建高性能Web服务",
		date:     "2024-01-08",
		tags:     []string{"Go", "Web开发"},
		content:  "# 使用Go语言构建高性能Web服务\n\nGo语言因其出色的并发性能和简洁的语法，成为构建高性能Web服务的理想选择。\n\n本文分享框架选择、性能优化和实际案例分析。",
	},
	{
		category: "tech",
		slug:     "sqlite-tuning",
		title:    "SQLite数据库优化实践",
		date:     "2024-02-14",
		tags:     []string{"数据库", "SQLite"},
		content:  "# SQLite数据库优化实践\n\nSQLite作为轻量级数据库，在很多场景下都有出色表现。\n\n包括索引优化、查询优化和事务处理等实用技巧。",
	},
	{
		category: "tech",
		slug:     "gorm-tips",
		title:    "GORM使用技巧与最佳实践",
		date:     "2024-03-02",
		tags:     []string{"Go", "数据库"},
		content:  "# GORM使用技巧与最佳实践\n\nGORM是Go语言中最流行的ORM库之一。\n\n本文总结常用用法和性能优化建议。",
	},
	{
		category: "thinking",
		slug:     "knowledge-system",
		title:    "个人知识管理系统的设计与实现",
		date:     "2024-01-20",
		tags:     []string{"思考", "项目"},
		content:  "# 个人知识管理系统的设计与实现\n\n在信息爆炸的时代，如何有效管理个人知识成为一个重要课题。",
	},
	{
		category: "thinking",
		slug:     "choosing-a-stack",
		title:    "现代Web开发技术栈选择思考",
		date:     "2024-04-11",
		tags:     []string{"Web开发", "思考"},
		content:  "# 现代Web开发技术栈选择思考\n\n选择技术栈时，需要综合考虑项目需求、团队能力与维护成本。",
	},
	{
		category: "tutorial",
		slug:     "gin-middleware",
		title:    "Gin框架中间件开发实战",
		date:     "2024-05-06",
		tags:     []string{"Go", "教程"},
		content:  "# Gin框架中间件开发实战\n\nGin 支持灵活的中间件机制。\n\n本文介绍如何开发日志与鉴权中间件。",
	},
}

// 内容目录示例数据生成器
func main() {
	cfg := config.Load()

	gdb, err := db.Open(db.Options{Path: cfg.DatabasePath, Driver: cfg.DatabaseDriver})
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}
	defer db.Close(gdb)

	index := db.NewIndex(gdb)
	if err := index.EnsureSchema(context.Background()); err != nil {
		log.Fatal("数据库迁移失败:", err)
	}

	store := filestore.New(cfg.ContentRoot)
	engine := service.NewSyncEngine(store, index, slog.New(slog.NewTextHandler(io.Discard, nil)))
	blog := service.NewBlogService(store, index, engine)

	fmt.Println("开始生成示例内容...")
	categories, posts, err := seedContent(blog)
	if err != nil {
		log.Fatal("示例内容生成失败:", err)
	}
	fmt.Printf("示例内容生成完成！分类: %d，文章: %d，目录: %s\n", categories, posts, cfg.ContentRoot)
}

// seedContent 写入示例分类与文章。已存在的分类会跳过，文章按 upsert 覆盖。
func seedContent(blog *service.BlogService) (int, int, error) {
	categories := 0
	for _, c := range seedCategories {
		if _, err := blog.GetCategory(c.slug); err == nil {
			continue
		}
		if _, err := blog.CreateCategory(service.CategoryInput{Slug: c.slug, Name: c.name, Description: c.description}); err != nil {
			return categories, 0, fmt.Errorf("创建分类 %s 失败: %w", c.slug, err)
		}
		categories++
	}

	for i, p := range seedPosts {
		title, date, content := p.title, p.date, p.content
		tags := filestore.JoinTags(p.tags)
		if _, err := blog.SavePost(p.category, p.slug, service.PostInput{
			Title:   &title,
			Date:    &date,
			Tags:    &tags,
			Content: &content,
		}); err != nil {
			return categories, i, fmt.Errorf("创建文章 %s/%s 失败: %w", p.category, p.slug, err)
		}
	}
	return categories, len(seedPosts), nil
}
