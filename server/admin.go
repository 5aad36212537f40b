package server

import (
	"encoding/json"
	"net/http"

	"github.com/samber/lo"
)

// HandleAdminConfig 提供房间配置的读取与更新（热更新）
// GET /admin/config?room=game_room  返回当前配置
// POST /admin/config?room=game_room 以 JSON 载荷更新部分字段
func HandleAdminConfig(rm *RoomManager) http.HandlerFunc {
	type cfg struct {
		MaxPlayers *int `json:"maxPlayers,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := rm.Lookup(r.URL.Query().Get("room"))
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			n, err := room.MaxPlayers(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, cfg{MaxPlayers: &n})
		case http.MethodPost:
			var body cfg
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if body.MaxPlayers != nil {
				if err := room.SetMaxPlayers(r.Context(), *body.MaxPlayers); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				Log.Infof("config updated: room=%s maxPlayers=%d", room.ID, *body.MaxPlayers)
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleMetrics 输出房间运行指标
// GET /metrics?room=game_room
func HandleMetrics(rm *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := rm.Lookup(r.URL.Query().Get("room"))
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"room":    room.ID,
			"metrics": room.Metrics().Snapshot(),
		})
	}
}

// HandleRoster 输出当前在线名单 {players, count}
func HandleRoster(rm *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := rm.Lookup(r.URL.Query().Get("room"))
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}
		roster, err := room.Roster(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, roster)
	}
}

// WithCORS 为 HTTP 接口添加跨域头，来源需在允许列表中
func WithCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origins, origin) {
			if lo.Contains(origins, "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
