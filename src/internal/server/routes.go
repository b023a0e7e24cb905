package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/admi-n/txguard/src/internal"
	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/download"
	"github.com/admi-n/txguard/src/internal/evm"
	"github.com/admi-n/txguard/src/internal/session"
)

// GenericError 错误响应
type GenericError struct {
	Error string `json:"error"`
}

// AddRoutes 注册分析相关路由
func (s *Server) AddRoutes(rg *gin.RouterGroup) {
	rg.GET("/analysis-stream", s.analysisStream)
	rg.POST("/analyze", s.analyzeBytecode)
	rg.GET("/detectors", listDetectors)
}

// analysisStream 分析链上合约并以 SSE 推送事件。
// 参数：chain（eth/bsc/arb，默认 eth），target（合约地址或交易哈希）。
func (s *Server) analysisStream(c *gin.Context) {
	target, err := internal.ParseTarget(c.DefaultQuery("chain", "eth"), c.Query("target"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, GenericError{Error: err.Error()})
		return
	}
	if target.IsTx {
		if s.resolver == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, GenericError{Error: "transaction lookup not available"})
			return
		}
		addr, err := s.resolver.ResolveTarget(c.Request.Context(), target.Chain, target.TxHash)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, download.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.AbortWithStatusJSON(status, GenericError{Error: err.Error()})
			return
		}
		target = internal.Target{Chain: target.Chain, Address: addr}
	}

	sess := s.coordinator.NewAddressSession(s.source, target.Chain, target.Address)
	key := target.Key()
	if _, running := s.inflight.LoadOrStore(key, sess.ID); running {
		c.AbortWithStatusJSON(http.StatusConflict, GenericError{Error: "analysis already running for " + target.String()})
		return
	}
	defer s.inflight.Delete(key)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Session-Id", sess.ID)
	events := sess.Start(c.Request.Context())
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(string(ev.Type), ev)
		return !ev.Type.Terminal()
	})
}

type analyzeRequest struct {
	Bytecode string `json:"bytecode" binding:"required"`
}

// analyzeBytecode 分析请求体中的字节码，返回最终结论
func (s *Server) analyzeBytecode(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, GenericError{Error: err.Error()})
		return
	}
	code, err := evm.ParseHex(req.Bytecode)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, GenericError{Error: err.Error()})
		return
	}

	var last session.Event
	for ev := range s.coordinator.Analyze(c.Request.Context(), code) {
		last = ev
	}
	switch last.Type {
	case session.VerdictEvent:
		c.JSON(http.StatusOK, last.Verdict)
	case session.Failed:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, GenericError{Error: string(last.Reason)})
	default:
		// 客户端已断开
		c.Abort()
	}
}

func listDetectors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"detectors": detector.Default().IDs()})
}
