package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/installed"
)

// InstalledStore 已安装快照存储
type InstalledStore interface {
	List(ctx context.Context) ([]*domain.InstalledPackage, error)
	Replace(ctx context.Context, packages []*domain.InstalledPackage) error
}

// InstalledHandler 已安装包处理器
type InstalledHandler struct {
	store    InstalledStore
	provider installed.Provider
	logger   *logrus.Logger
}

// NewInstalledHandler 创建已安装包处理器
func NewInstalledHandler(store InstalledStore, provider installed.Provider, logger *logrus.Logger) *InstalledHandler {
	return &InstalledHandler{
		store:    store,
		provider: provider,
		logger:   logger,
	}
}

// ReplaceInstalled 整体替换已安装快照
// PUT /api/installed
func (h *InstalledHandler) ReplaceInstalled(c *gin.Context) {
	var packages []*domain.InstalledPackage
	if err := c.ShouldBindJSON(&packages); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "请求格式错误",
		})
		return
	}
	for _, p := range packages {
		if p == nil || strings.TrimSpace(p.PackageName) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "包名不能为空",
			})
			return
		}
	}

	if err := h.store.Replace(c.Request.Context(), packages); err != nil {
		h.logger.WithError(err).Error("Failed to replace installed packages")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "保存已安装列表失败",
		})
		return
	}

	h.logger.WithField("count", len(packages)).Info("Installed snapshot replaced")
	c.JSON(http.StatusOK, gin.H{
		"count": len(packages),
	})
}

// ListInstalled 列出快照，q 支持包名、应用名与拼音搜索
// GET /api/installed?q=wx
func (h *InstalledHandler) ListInstalled(c *gin.Context) {
	packages, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list installed packages")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取已安装列表失败",
		})
		return
	}
	if q := c.Query("q"); q != "" {
		packages = installed.Filter(packages, q)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  packages,
		"total": len(packages),
	})
}

// GetInstalled 查询单个包的已安装信息
// GET /api/installed/:package
func (h *InstalledHandler) GetInstalled(c *gin.Context) {
	packageName := c.Param("package")
	info, err := installed.Require(c.Request.Context(), h.provider, packageName)
	if err != nil {
		if errors.Is(err, installed.ErrNotInstalled) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "应用未安装",
			})
			return
		}
		h.logger.WithError(err).WithField("package_name", packageName).Error("Failed to look up installed package")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "查询已安装信息失败",
		})
		return
	}
	c.JSON(http.StatusOK, info)
}
