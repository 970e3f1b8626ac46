// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/config"
	"github.com/standsense/standsense/internal/posture"
	"github.com/standsense/standsense/internal/scheduler"
	"github.com/standsense/standsense/internal/store"
)

// dashboardState is the combined snapshot served to the dashboard.
type dashboardState struct {
	Posture *posture.State   `json:"posture,omitempty"`
	Phase   *scheduler.State `json:"phase,omitempty"`
}

// phaseSnapshot projects the last observed transition into the scheduler
// state as of now, so the served countdown keeps moving between transitions.
func phaseSnapshot(tr *scheduler.Transition, now time.Time) *scheduler.State {
	if tr == nil {
		return nil
	}
	remaining := tr.To.Duration - now.Sub(tr.At)
	if remaining < 0 {
		remaining = 0
	}
	return &scheduler.State{Phase: tr.To, Running: true, Remaining: remaining}
}

// wsHub fans dashboard updates out to connected websocket clients.
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *zap.Logger
}

func newWSHub(logger *zap.Logger) *wsHub {
	return &wsHub{clients: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

// broadcast writes the payload to every client, dropping clients whose
// connection has gone away.
func (h *wsHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("websocket client dropped", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// RunWeb serves the dashboard: latest posture and phase state as JSON, a
// websocket push feed, and daily history from the store.
func RunWeb() error {
	cfg := config.Get()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var (
		mu          sync.RWMutex
		lastPosture *posture.State
		lastTr      *scheduler.Transition
	)
	hub := newWSHub(logger)

	snapshot := func() dashboardState {
		mu.RLock()
		defer mu.RUnlock()
		return dashboardState{
			Posture: lastPosture,
			Phase:   phaseSnapshot(lastTr, time.Now()),
		}
	}

	pushUpdate := func() {
		payload, err := json.Marshal(snapshot())
		if err != nil {
			logger.Error("json marshal", zap.Error(err))
			return
		}
		hub.broadcast(payload)
	}

	stateToken := client.Subscribe(cfg.TopicPostureState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st posture.State
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			logger.Warn("posture state unmarshal", zap.Error(err))
			return
		}
		mu.Lock()
		lastPosture = &st
		mu.Unlock()
		pushUpdate()
	})
	if stateToken.Wait(); stateToken.Error() != nil {
		return stateToken.Error()
	}

	phaseToken := client.Subscribe(cfg.TopicPhaseTransition, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var tr scheduler.Transition
		if err := json.Unmarshal(msg.Payload(), &tr); err != nil {
			logger.Warn("phase transition unmarshal", zap.Error(err))
			return
		}
		mu.Lock()
		lastTr = &tr
		mu.Unlock()
		pushUpdate()
	})
	if phaseToken.Wait(); phaseToken.Error() != nil {
		return phaseToken.Error()
	}
	logger.Info("subscribed", zap.String("state", cfg.TopicPostureState), zap.String("phase", cfg.TopicPhaseTransition))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		snap := snapshot()
		if snap.Posture == nil && snap.Phase == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Error("json encode", zap.Error(err))
		}
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		day := time.Now()
		if q := r.URL.Query().Get("day"); q != "" {
			parsed, err := time.ParseInLocation("2006-01-02", q, time.Local)
			if err != nil {
				http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			day = parsed
		}

		summary, err := db.Summarize(day)
		if err != nil {
			logger.Error("summarize", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			logger.Error("json encode", zap.Error(err))
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade", zap.Error(err))
			return
		}
		hub.add(conn)

		// Send the current snapshot immediately so a fresh client does not
		// wait for the next update.
		payload, err := json.Marshal(snapshot())
		if err == nil {
			conn.WriteMessage(websocket.TextMessage, payload)
		}
	})

	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	logger.Info("web server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
