package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/report"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
	"github.com/apk-analysis/apk-intake-go/internal/service"
)

// maxUploadSize 单个上传文件上限 (2GB)
const maxUploadSize = int64(2 << 30)

// AnalysisHandler 分析处理器
type AnalysisHandler struct {
	analysisService service.AnalysisService
	logger          *logrus.Logger
	uploadPath      string
	queue           QueueStatus
}

// QueueStatus 消息队列消费者的运行状态
type QueueStatus interface {
	IsRunning() bool
	GetActiveWorkers() int
	QueueDepth() (int, error)
}

// SetQueue 设置队列状态来源，未启用队列时保持为空
func (h *AnalysisHandler) SetQueue(q QueueStatus) {
	h.queue = q
}

// NewAnalysisHandler 创建分析处理器实例
func NewAnalysisHandler(analysisService service.AnalysisService, logger *logrus.Logger, uploadPath string) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		logger:          logger,
		uploadPath:      uploadPath,
	}
}

// createAnalysisRequest JSON 形式的分析请求，路径为服务端本地路径
type createAnalysisRequest struct {
	Paths          []string        `json:"paths"`
	SessionID      string          `json:"session_id"`
	SplitChooseAll *bool           `json:"split_choose_all"`
	Profile        *device.Profile `json:"device"`
}

// analysisResponse 记录与结果
type analysisResponse struct {
	Record  *domain.AnalysisRecord `json:"record"`
	Results json.RawMessage        `json:"results"`
}

func newAnalysisResponse(record *domain.AnalysisRecord) analysisResponse {
	results := json.RawMessage("[]")
	if record.ResultJSON != "" {
		results = json.RawMessage(record.ResultJSON)
	}
	trimmed := *record
	trimmed.ResultJSON = ""
	return analysisResponse{Record: &trimmed, Results: results}
}

// CreateAnalysis 发起一次分析
// POST /api/analyses
// application/json: {"paths": [...], "split_choose_all": true, "device": {...}}
// multipart/form-data: 一个或多个 files 字段
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	var req service.AnalyseRequest

	if c.ContentType() == "multipart/form-data" {
		paths, err := h.saveUploads(c)
		if err != nil {
			h.logger.WithError(err).Error("Failed to save uploaded files")
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		req.Paths = paths
		if v := c.PostForm("split_choose_all"); v != "" {
			chooseAll, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "split_choose_all 必须是布尔值",
				})
				return
			}
			req.SplitChooseAll = &chooseAll
		}
	} else {
		var body createAnalysisRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "请求格式错误",
			})
			return
		}
		req.Paths = body.Paths
		req.SessionID = body.SessionID
		req.Profile = body.Profile
		req.SplitChooseAll = body.SplitChooseAll
	}

	outcome, err := h.analysisService.Analyse(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrNoSources) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "没有可分析的文件",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to analyse")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "分析失败",
		})
		return
	}

	c.JSON(http.StatusCreated, newAnalysisResponse(outcome.Record))
}

// saveUploads 把上传文件保存到独立的子目录，保留原文件名
func (h *AnalysisHandler) saveUploads(c *gin.Context) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("获取上传文件失败: %w", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		return nil, errors.New("没有上传文件")
	}

	dir := filepath.Join(h.uploadPath, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建上传目录失败: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		if file.Size > maxUploadSize {
			return nil, fmt.Errorf("文件大小超过限制 (最大 %dMB)", maxUploadSize/(1024*1024))
		}

		destPath := filepath.Join(dir, filepath.Base(file.Filename))
		src, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("打开上传文件失败: %w", err)
		}
		dst, err := os.Create(destPath)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("创建目标文件失败: %w", err)
		}
		written, err := io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			os.Remove(destPath)
			return nil, fmt.Errorf("文件上传失败: %w", err)
		}

		h.logger.WithFields(logrus.Fields{
			"filename": file.Filename,
			"size":     written,
			"path":     destPath,
		}).Info("File uploaded")
		paths = append(paths, destPath)
	}
	return paths, nil
}

// ListAnalyses 获取分析记录列表
// GET /api/analyses?page=1&page_size=20&status=completed
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	records, total, err := h.analysisService.List(c.Request.Context(), page, pageSize, c.Query("status"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list analyses")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取分析列表失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetAnalysis 获取单条分析记录及结果
// GET /api/analyses/:id
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	record, err := h.analysisService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "分析记录不存在",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to get analysis")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取分析记录失败",
		})
		return
	}
	c.JSON(http.StatusOK, newAnalysisResponse(record))
}

// reportContentTypes 导出格式对应的 Content-Type
var reportContentTypes = map[report.Format]string{
	report.FormatText:  "text/plain; charset=utf-8",
	report.FormatJSON:  "application/json",
	report.FormatJSONL: "application/x-ndjson",
	report.FormatYAML:  "application/yaml",
	report.FormatXLSX:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	report.FormatPDF:   "application/pdf",
}

// ExportReport 按格式导出分析结果
// GET /api/analyses/:id/report?format=pdf
func (h *AnalysisHandler) ExportReport(c *gin.Context) {
	format, err := report.ParseFormat(c.DefaultQuery("format", string(report.FormatText)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	id := c.Param("id")
	record, err := h.analysisService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "分析记录不存在",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to get analysis")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取分析记录失败",
		})
		return
	}

	var views []domain.ResultView
	if record.ResultJSON != "" {
		if err := json.Unmarshal([]byte(record.ResultJSON), &views); err != nil {
			h.logger.WithError(err).WithField("analysis_id", id).Error("Failed to decode stored result")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "分析结果损坏",
			})
			return
		}
	}

	c.Header("Content-Type", reportContentTypes[format])
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("analysis-%s.%s", id, format)))
	c.Status(http.StatusOK)
	if err := report.Write(c.Writer, format, views); err != nil {
		h.logger.WithError(err).WithField("analysis_id", id).Error("Failed to write report")
	}
}

// DeleteAnalysis 删除分析记录
// DELETE /api/analyses/:id
func (h *AnalysisHandler) DeleteAnalysis(c *gin.Context) {
	id := c.Param("id")
	if err := h.analysisService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "分析记录不存在",
			})
			return
		}
		h.logger.WithError(err).WithField("analysis_id", id).Error("Failed to delete analysis")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "删除分析记录失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "删除成功",
	})
}

// GetStats 各状态的记录数，启用队列时附带队列状态
// GET /api/stats
func (h *AnalysisHandler) GetStats(c *gin.Context) {
	counts, err := h.analysisService.StatusCounts(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get status counts")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取统计失败",
		})
		return
	}

	body := gin.H{"analyses": counts}
	if h.queue != nil {
		queue := gin.H{
			"running":        h.queue.IsRunning(),
			"active_workers": h.queue.GetActiveWorkers(),
		}
		if depth, err := h.queue.QueueDepth(); err != nil {
			h.logger.WithError(err).Warn("Failed to inspect queue depth")
		} else {
			queue["depth"] = depth
		}
		body["queue"] = queue
	}
	c.JSON(http.StatusOK, body)
}
