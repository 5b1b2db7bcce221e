package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerSync 手动触发一次磁盘到索引的同步。已有同步在运行时直接返回 skipped。
func (a *API) TriggerSync(c *gin.Context) {
	report, err := a.blog.Sync(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":        report.RunID,
		"skipped":      report.Skipped,
		"bootstrapped": report.Bootstrapped,
		"categories":   report.Categories,
		"posts":        report.Posts,
		"failed":       report.Failed,
		"pruned":       report.Pruned,
		"durationMs":   report.Duration.Milliseconds(),
	})
}

// MigrationStatus 返回迁移记录。
func (a *API) MigrationStatus(c *gin.Context) {
	state, err := a.blog.MigrationStatus(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	migrations := make([]gin.H, 0, len(state.Migrations))
	for _, m := range state.Migrations {
		item := gin.H{"version": m.Version, "name": m.Name, "applied": m.Applied}
		if m.Applied && !m.AppliedAt.IsZero() {
			item["appliedAt"] = m.AppliedAt
		}
		migrations = append(migrations, item)
	}
	c.JSON(http.StatusOK, gin.H{"currentVersion": state.CurrentVersion, "migrations": migrations})
}

// RunMigrations 执行尚未应用的迁移。
func (a *API) RunMigrations(c *gin.Context) {
	applied, err := a.blog.RunMigrations(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if applied == nil {
		applied = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}
