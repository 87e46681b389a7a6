package admin

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m3rciful/channelgate/core/logger"
	"github.com/m3rciful/channelgate/core/telegram/format"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/users"
)

type postRequest struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Call        string `json:"call" form:"call"`
	ButtonText  string `json:"button_text" form:"buttonText"`
	ImageURL    string `json:"image_url" form:"imageUrl"`
}

type bonusURLRequest struct {
	URL string `json:"url" form:"bonusPdfUrl" binding:"required"`
}

func errorJSON(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"status": "error", "error": err.Error()})
}

func (s *Server) overview(c *gin.Context) {
	post := s.deps.Settings.Post()
	post.Description = format.Editable(post.Description)
	c.JSON(http.StatusOK, gin.H{
		"stats":     s.deps.Store.Stats(),
		"bonus_url": s.deps.Settings.BonusURL(),
		"post":      post,
		"copy":      s.deps.Settings.Copy(),
	})
}

func (s *Server) save(c *gin.Context) {
	if err := s.deps.Store.Persist(c.Request.Context()); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "users": s.deps.Store.Stats().Users})
}

func (s *Server) clear(c *gin.Context) {
	ctx := c.Request.Context()
	removed := s.deps.Store.Clear()
	logger.Warn(ctx, component, "clear",
		slog.String("status", "ok"),
		slog.Int("users", removed),
	)
	if err := s.deps.Store.Persist(ctx); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "removed": removed})
}

func (s *Server) publish(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBind(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	post, err := s.deps.Settings.SetPost(req.Title, req.Description, req.Call, req.ButtonText, req.ImageURL)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	s.send(c, post)
}

func (s *Server) publishCurrent(c *gin.Context) {
	s.send(c, s.deps.Settings.Post())
}

func (s *Server) send(c *gin.Context, post content.Post) {
	msg, err := s.deps.Publisher.Publish(c.Request.Context(), post)
	if err != nil {
		errorJSON(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": msg})
}

func (s *Server) updateBonusURL(c *gin.Context) {
	var req bonusURLRequest
	if err := c.ShouldBind(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Settings.SetBonusURL(req.URL); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bonus_url": s.deps.Settings.BonusURL()})
}

func (s *Server) updateCopy(c *gin.Context) {
	var patch content.Copy
	if err := c.ShouldBindJSON(&patch); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "copy": s.deps.Settings.UpdateCopy(patch)})
}

func (s *Server) exportCSV(c *gin.Context) {
	data, err := encodeCSV(s.deps.Store.Snapshot())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=users.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (s *Server) exportJSON(c *gin.Context) {
	data, err := users.EncodeSnapshot(s.deps.Store.Snapshot())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=users.json")
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) probe(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		url = s.deps.Settings.BonusURL()
	}
	res, err := s.deps.Prober.Probe(c.Request.Context(), url)
	if err != nil {
		errorJSON(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) bot(c *gin.Context) {
	if s.deps.Identity == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "bot identity unavailable"})
		return
	}
	me, err := s.deps.Identity(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bot": me})
}

func encodeCSV(records []users.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"ID", "Username", "Subscription Status", "PDF Sent", "Last Activity"})
	for _, r := range records {
		sub := "Not Subscribed"
		if r.IsSubscribed {
			sub = "Subscribed"
		}
		sent := "No"
		if r.PDFSent {
			sent = "Yes"
		}
		_ = w.Write([]string{
			strconv.FormatInt(r.UserID, 10),
			r.Username,
			sub,
			sent,
			r.LastActivity.Format(time.RFC3339),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
