package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/datarhei/rtsp/http/api"
	"github.com/datarhei/rtsp/http/handler/util"
	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/rtsp/server"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Puller relays remote streams to local paths
type Puller interface {
	Pull(ctx context.Context, url, path string) (<-chan struct{}, error)
}

type pull struct {
	api.Pull
	cancel context.CancelFunc
}

// The PullHandler type provides handlers to manage the relays of remote streams
type PullHandler struct {
	puller Puller
	logger log.Logger

	lock  sync.Mutex
	pulls map[string]*pull
}

// NewPull returns a new Pull type. You have to provide a Puller, e.g. the RTSP server.
func NewPull(puller Puller, logger log.Logger) *PullHandler {
	h := &PullHandler{
		puller: puller,
		logger: logger,
		pulls:  map[string]*pull{},
	}

	if h.logger == nil {
		h.logger = log.New("")
	}

	return h
}

// List returns all active pulls, the oldest first
func (h *PullHandler) List(c echo.Context) error {
	h.lock.Lock()
	list := make([]api.Pull, 0, len(h.pulls))
	for _, p := range h.pulls {
		list = append(list, p.Pull)
	}
	h.lock.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt == list[j].CreatedAt {
			return list[i].ID < list[j].ID
		}

		return list[i].CreatedAt < list[j].CreatedAt
	})

	return c.JSON(http.StatusOK, list)
}

// Add starts to relay a remote stream to a local path
func (h *PullHandler) Add(c echo.Context) error {
	req := api.PullRequest{}

	if err := util.ShouldBindJSON(c, &req); err != nil {
		return api.Err(http.StatusBadRequest, "Invalid JSON", "%s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done, err := h.puller.Pull(ctx, req.URL, req.Path)
	if err != nil {
		cancel()

		if errors.Is(err, server.ErrAlreadyPublishing) {
			return api.Err(http.StatusConflict, "", "%s is already published", req.Path)
		}

		return api.Err(http.StatusBadGateway, "Unable to pull", "%s", err)
	}

	p := &pull{
		Pull: api.Pull{
			ID:        uuid.New().String(),
			URL:       redact(req.URL),
			Path:      req.Path,
			CreatedAt: time.Now().Unix(),
		},
		cancel: cancel,
	}

	h.lock.Lock()
	h.pulls[p.ID] = p
	h.lock.Unlock()

	h.logger.Info().WithFields(log.Fields{
		"id":   p.ID,
		"url":  p.URL,
		"path": p.Path,
	}).Log("Pull started")

	go func() {
		<-done

		h.remove(p.ID)
	}()

	return c.JSON(http.StatusCreated, p.Pull)
}

// Delete stops a pull
func (h *PullHandler) Delete(c echo.Context) error {
	id := util.PathParam(c, "id")

	if !h.remove(id) {
		return api.Err(http.StatusNotFound, "", "unknown pull %s", id)
	}

	return c.JSON(http.StatusOK, "OK")
}

func (h *PullHandler) remove(id string) bool {
	h.lock.Lock()
	p, ok := h.pulls[id]
	delete(h.pulls, id)
	h.lock.Unlock()

	if !ok {
		return false
	}

	p.cancel()

	h.logger.Info().WithField("id", id).Log("Pull stopped")

	return true
}

// Close stops all pulls
func (h *PullHandler) Close() {
	h.lock.Lock()
	ids := make([]string, 0, len(h.pulls))
	for id := range h.pulls {
		ids = append(ids, id)
	}
	h.lock.Unlock()

	for _, id := range ids {
		h.remove(id)
	}
}

func redact(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}

	return u.Redacted()
}
