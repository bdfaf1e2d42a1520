package listener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixil98/go-log"
)

// WebsocketListener is the worker that accepts client connections and
// hands each one to the connection manager.
type WebsocketListener struct {
	port uint16
	path string
	cm   *ConnectionManager

	upgrader websocket.Upgrader
}

func NewWebsocketListener(port uint16, cm *ConnectionManager) *WebsocketListener {
	return &WebsocketListener{
		port: port,
		path: "/ws",
		cm:   cm,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (l *WebsocketListener) Start(ctx context.Context) error {
	// Connections share a context that outlives individual requests but
	// ends with the listener.
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()
	connCtx = log.SetLogger(connCtx, log.GetLogger(ctx))

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, func(w http.ResponseWriter, r *http.Request) {
		l.serve(connCtx, w, r)
	})

	svr := &http.Server{
		Addr:    fmt.Sprintf(":%d", l.port),
		Handler: mux,
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := svr.Shutdown(shutdownCtx); err != nil {
				log.GetLogger(ctx).Warnf("shutting down websocket server: %s", err)
			}
			cancelConns()
		case <-done:
		}
	}()

	log.GetLogger(ctx).Infof("websocket listener on :%d%s", l.port, l.path)

	err := svr.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d is already in use (another server running?)", l.port)
		}
		return fmt.Errorf("serving websockets on port %d: %w", l.port, err)
	}

	return nil
}

func (l *WebsocketListener) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.GetLogger(ctx).Warnf("upgrading connection: %s", err)
		return
	}

	conn := newConn(ws)
	l.cm.Run(ctx, conn, token)
}
