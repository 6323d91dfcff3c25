package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/invopop/jsonschema"
)

// HandleAdminConfig 返回启动时确定的配置与推导出的每 Tick 常量
// GET /admin/config
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"config": s.cfg,
		"tuning": s.sim.tuning,
	})
}

// HandlePlayers 列出注册表中的在线玩家与最近快照中的坦克数
// GET /admin/players
func (s *Server) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	live := s.registry.Live()
	ids := make([]string, len(live))
	for i, id := range live {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	payload := map[string]any{"players": ids}
	if snap := s.publisher.Latest(); snap != nil {
		payload["tick"] = snap.Tick
		payload["tanks"] = len(snap.Tanks)
	}
	writeJSON(w, payload)
}

// HandleMetrics 输出运行指标
// GET /metrics
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var tick uint64
	if snap := s.publisher.Latest(); snap != nil {
		tick = snap.Tick
	}
	writeJSON(w, map[string]any{
		"tick":    tick,
		"metrics": s.metrics.Snapshot(),
	})
}

// HandleSchema 输出 JSON 编解码器消息的 JSON Schema，方便调试客户端
// GET /schema
func (s *Server) HandleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"codec":    s.codec.Name(),
		"action":   reflectSchema(new(JSONAction), "Player action", "Binary frame sent by clients when codec=json"),
		"snapshot": reflectSchema(new(JSONSnapshot), "World snapshot", "Binary frame broadcast to clients when codec=json"),
	})
}

func reflectSchema(v any, title, desc string) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(v)
	schema.Title = title
	schema.Description = desc
	return schema
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
