package router

import (
	"context"
	"errors"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mailmerge/mailmerge/internal/handler"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/middleware"
)

// UpdateHandler is what the router delivers updates to
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update) error
	ReplyError(ctx context.Context, u tgbotapi.Update)
}

// Router delivers updates in arrival order per user.
// Updates from one user never run concurrently; different users run in parallel.
type Router struct {
	h      UpdateHandler
	handle middleware.Handler
	log    *logger.Logger

	mu      sync.Mutex
	pending map[int64][]tgbotapi.Update
	wg      sync.WaitGroup
}

// New creates the update router
func New(h UpdateHandler, mw *middleware.Middleware, log *logger.Logger) *Router {
	return &Router{
		h:       h,
		handle:  middleware.Chain(h.HandleUpdate, mw.UpdateID, mw.Logger, mw.Recover, mw.RateLimit),
		log:     log.WithComponent("router"),
		pending: make(map[int64][]tgbotapi.Update),
	}
}

// Run delivers updates until ctx is done or the channel closes, then waits
// for the updates already accepted to finish.
func (r *Router) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer r.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, u)
		}
	}
}

// Dispatch queues u behind any update of the same user that is still running.
// Handlers get a context that is not canceled at shutdown, so a mailing in
// progress is finished rather than cut off.
func (r *Router) Dispatch(ctx context.Context, u tgbotapi.Update) {
	userID := middleware.UserID(u)

	r.mu.Lock()
	if queue, busy := r.pending[userID]; busy {
		r.pending[userID] = append(queue, u)
		r.mu.Unlock()
		return
	}
	r.pending[userID] = nil
	r.mu.Unlock()

	r.wg.Add(1)
	go r.drain(context.WithoutCancel(ctx), userID, u)
}

// Wait blocks until every dispatched update has been handled
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) drain(ctx context.Context, userID int64, u tgbotapi.Update) {
	defer r.wg.Done()

	for {
		r.serve(ctx, u)

		r.mu.Lock()
		queue := r.pending[userID]
		if len(queue) == 0 {
			delete(r.pending, userID)
			r.mu.Unlock()
			return
		}
		u = queue[0]
		r.pending[userID] = queue[1:]
		r.mu.Unlock()
	}
}

func (r *Router) serve(ctx context.Context, u tgbotapi.Update) {
	err := r.handle(ctx, u)
	if err == nil || errors.Is(err, middleware.ErrRateLimited) {
		return
	}
	r.h.ReplyError(ctx, u)
}

// NewHealthMux creates the HTTP mux for health probes
func NewHealthMux(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	return mux
}
