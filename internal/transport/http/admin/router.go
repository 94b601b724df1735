package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"arena/internal/engine"
	"arena/internal/ledger"
	"arena/internal/logger"
	"arena/internal/market"
	"arena/internal/scheduler"
	"arena/internal/types"

	"github.com/gin-gonic/gin"
)

// factoryResetConfirm 是全量重置的确认口令，防止误触。
const factoryResetConfirm = "RESET"

// SchedulerControl 是路由对调度器的依赖面。
type SchedulerControl interface {
	GetState() scheduler.State
	GetMetrics() scheduler.Metrics
	Pause()
	Resume()
	StepOnce(ctx context.Context)
	SetCycleMs(ms int)
	Reset()
	GetLatestDecisions(traderID string, limit int) []*engine.Record
	GetCallCount(traderID string) int
	Traders() []*types.TraderManifest
}

// LedgerAccess 是路由对账本的依赖面。
type LedgerAccess interface {
	Snapshots() []*ledger.Snapshot
	Snapshot(traderID string) (*ledger.Snapshot, error)
	ResetAll() error
	ResetTrader(traderID string, opts ledger.ResetOptions) error
}

// TraderDirectory 按 ID 查交易员清单。
type TraderDirectory interface {
	Trader(id string) (*types.TraderManifest, bool)
}

// DecisionAdvisor 接收外部模型的决策建议。
type DecisionAdvisor interface {
	SubmitSuggestion(traderID, raw string) (*market.ExternalDecision, error)
}

// Router 暴露竞技场控制与查询接口。
type Router struct {
	sched    SchedulerControl
	ledgers  LedgerAccess
	registry TraderDirectory
	advisor  DecisionAdvisor
}

func NewRouter(sched SchedulerControl, ledgers LedgerAccess, registry TraderDirectory, advisor DecisionAdvisor) *Router {
	return &Router{sched: sched, ledgers: ledgers, registry: registry, advisor: advisor}
}

// Register 将 /api/arena 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/state", r.handleState)
	group.GET("/metrics", r.handleMetrics)
	group.GET("/traders", r.handleTraders)
	group.GET("/decisions/:id", r.handleDecisions)
	group.POST("/pause", r.handlePause)
	group.POST("/resume", r.handleResume)
	group.POST("/step", r.handleStep)
	group.POST("/cycle-ms", r.handleCycleMs)
	group.POST("/reset", r.handleFactoryReset)
	group.POST("/traders/:id/reset", r.handleTraderReset)
	if r.advisor != nil {
		group.POST("/traders/:id/suggest", r.handleSuggest)
	}
	if r.ledgers != nil {
		group.GET("/ledgers", r.handleLedgers)
		group.GET("/ledgers/:id", r.handleLedgerDetail)
	}
}

func (r *Router) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, r.sched.GetState())
}

func (r *Router) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, r.sched.GetMetrics())
}

func (r *Router) handleTraders(c *gin.Context) {
	traders := r.sched.Traders()
	type traderView struct {
		*types.TraderManifest
		CallCount int `json:"call_count"`
	}
	out := make([]traderView, 0, len(traders))
	for _, t := range traders {
		out = append(out, traderView{TraderManifest: t, CallCount: r.sched.GetCallCount(t.TraderID)})
	}
	c.JSON(http.StatusOK, gin.H{"traders": out})
}

func (r *Router) handleDecisions(c *gin.Context) {
	traderID := strings.TrimSpace(c.Param("id"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	records := r.sched.GetLatestDecisions(traderID, limit)
	c.JSON(http.StatusOK, gin.H{
		"trader_id": traderID,
		"count":     len(records),
		"decisions": records,
	})
}

func (r *Router) handlePause(c *gin.Context) {
	r.sched.Pause()
	logger.Infof("[api] 暂停调度 ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": r.sched.GetState().Running})
}

func (r *Router) handleResume(c *gin.Context) {
	r.sched.Resume()
	logger.Infof("[api] 恢复调度 ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": r.sched.GetState().Running})
}

// handleStep 同步驱动一个完整周期，返回时本轮决策已全部落地。
func (r *Router) handleStep(c *gin.Context) {
	r.sched.StepOnce(c.Request.Context())
	logger.Infof("[api] 手动步进 ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok", "metrics": r.sched.GetMetrics()})
}

type cycleMsRequest struct {
	CycleMs int `json:"cycle_ms"`
}

func (r *Router) handleCycleMs(c *gin.Context) {
	var req cycleMsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CycleMs < 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cycle_ms 不能小于 200"})
		return
	}
	r.sched.SetCycleMs(req.CycleMs)
	logger.Infof("[api] 调整节拍 ip=%s cycle_ms=%d", c.ClientIP(), req.CycleMs)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": r.sched.GetState()})
}

type factoryResetRequest struct {
	Confirm string `json:"confirm"`
}

// handleFactoryReset 清零调度器运行时状态并重置全部账本。
// 必须携带确认口令，口令不符直接 400。
func (r *Router) handleFactoryReset(c *gin.Context) {
	var req factoryResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Confirm != factoryResetConfirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "确认口令不符, 需要 confirm=RESET"})
		return
	}
	r.sched.Reset()
	if r.ledgers != nil {
		if err := r.ledgers.ResetAll(); err != nil {
			logger.Errorf("[api] 全量重置账本失败 ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	logger.Warnf("[api] 已执行全量重置 ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type traderResetRequest struct {
	Confirm        string `json:"confirm"`
	ResetMemory    bool   `json:"reset_memory"`
	ResetPositions bool   `json:"reset_positions"`
	ResetStats     bool   `json:"reset_stats"`
}

// handleTraderReset 按范围重置单个交易员。确认口令必须等于该交易员 ID。
// 三个范围开关都未指定时视为全范围重置。
func (r *Router) handleTraderReset(c *gin.Context) {
	traderID := strings.TrimSpace(c.Param("id"))
	if traderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trader_id 必填"})
		return
	}
	var req traderResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Confirm != traderID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "确认口令不符, 需要 confirm=" + traderID})
		return
	}
	if r.registry != nil {
		if _, ok := r.registry.Trader(traderID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未知的交易员 " + traderID})
			return
		}
	}
	opts := ledger.ResetOptions{
		ResetMemory:     req.ResetMemory,
		ResetPositions:  req.ResetPositions,
		ResetStats:      req.ResetStats,
		PersistSnapshot: true,
	}
	if !opts.ResetMemory && !opts.ResetPositions && !opts.ResetStats {
		opts.ResetMemory = true
		opts.ResetPositions = true
		opts.ResetStats = true
	}
	if r.ledgers != nil {
		if err := r.ledgers.ResetTrader(traderID, opts); err != nil {
			logger.Errorf("[api] 重置交易员失败 ip=%s trader=%s err=%v", c.ClientIP(), traderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	logger.Warnf("[api] 已重置交易员 ip=%s trader=%s memory=%v positions=%v stats=%v",
		c.ClientIP(), traderID, opts.ResetMemory, opts.ResetPositions, opts.ResetStats)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "trader_id": traderID})
}

type suggestRequest struct {
	Raw string `json:"raw"`
}

// handleSuggest 接收模型原始输出并注入为该交易员的下一周期建议。
// 原始文本允许带 markdown 代码块或闲聊, 解析失败返回 400。
func (r *Router) handleSuggest(c *gin.Context) {
	traderID := strings.TrimSpace(c.Param("id"))
	if r.registry != nil {
		if _, ok := r.registry.Trader(traderID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未知的交易员 " + traderID})
			return
		}
	}
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "raw 不能为空"})
		return
	}
	dec, err := r.advisor.SubmitSuggestion(traderID, req.Raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] 注入外部建议 ip=%s trader=%s action=%s", c.ClientIP(), traderID, dec.Action)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "decision": dec})
}

func (r *Router) handleLedgers(c *gin.Context) {
	snaps := r.ledgers.Snapshots()
	c.JSON(http.StatusOK, gin.H{"count": len(snaps), "ledgers": snaps})
}

func (r *Router) handleLedgerDetail(c *gin.Context) {
	traderID := strings.TrimSpace(c.Param("id"))
	snap, err := r.ledgers.Snapshot(traderID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "未找到该交易员的账本"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}
