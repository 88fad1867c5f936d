package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/starford/stepsheet/internal/find"
	"github.com/starford/stepsheet/internal/session"
)

// JSON-RPC style error codes.
const (
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcMethod func(ctx context.Context, s *session.Session, params json.RawMessage) (any, error)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionSocket handles GET /api/sessions/{id}/ws. Each text frame carries
// one request {id, method, params} and is answered with {id, result|error}.
// The session is opened on connect and stays open after disconnect.
func (h *Handler) SessionSocket(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	s, err := h.svc.Sessions().Open(fileID)
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		data, err := json.Marshal(dispatch(r.Context(), s, req))
		if err != nil {
			slog.Error("rpc encode failed", slog.String("method", req.Method), slog.String("error", err.Error()))
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, s *session.Session, req rpcRequest) rpcResponse {
	m, ok := rpcMethods[req.Method]
	if !ok {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}}
	}
	result, err := m(ctx, s, req.Params)
	if err != nil {
		code := rpcServerError
		if _, bad := err.(paramsError); bad {
			code = rpcInvalidParams
		}
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: code, Message: err.Error()}}
	}
	return rpcResponse{ID: req.ID, Result: result}
}

type paramsError struct{ err error }

func (e paramsError) Error() string { return "invalid params: " + e.err.Error() }

func hasParams(params json.RawMessage) bool {
	return len(params) > 0 && string(params) != "null"
}

func bind(params json.RawMessage, v any) error {
	if !hasParams(params) {
		return paramsError{fmt.Errorf("params are required")}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return paramsError{err}
	}
	return nil
}

var rpcMethods = map[string]rpcMethod{
	"view": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return s.View()
	},
	"setText": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var p struct {
			Text    string `json:"text"`
			IfMatch string `json:"ifMatch"`
		}
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		if err := s.SetTextIfMatch(p.Text, p.IfMatch); err != nil {
			return nil, err
		}
		return s.View()
	},
	"select": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var p session.Selection
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		return s.Select(p)
	},
	"back": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return navResult(s.Back())
	},
	"forward": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return navResult(s.Forward())
	},
	"status": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return s.Status()
	},
	"highlightStep": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var p struct {
			Index int `json:"index"`
		}
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		return s.HighlightStep(p.Index)
	},
	"togglePass": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var p struct {
			Index int `json:"index"`
		}
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		pass, err := s.TogglePass(p.Index)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"pass": pass}, nil
	},
	"format": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		p := struct {
			Indent string `json:"indent"`
		}{Indent: "  "}
		if hasParams(params) {
			if err := bind(params, &p); err != nil {
				return nil, err
			}
		}
		if err := s.Format(p.Indent); err != nil {
			return nil, err
		}
		return s.View()
	},
	"openFind": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var cfg find.OpenConfig
		if hasParams(params) {
			var p struct {
				ShowReplace bool    `json:"showReplace"`
				Query       *string `json:"query"`
			}
			if err := bind(params, &p); err != nil {
				return nil, err
			}
			cfg = find.OpenConfig{ShowReplace: p.ShowReplace, Query: p.Query}
		}
		return s.OpenFind(cfg)
	},
	"closeFind": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return s.CloseFind()
	},
	"setQuery": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var p struct {
			Query string `json:"query"`
		}
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		return s.SetQuery(p.Query)
	},
	"setReplaceText": func(_ context.Context, s *session.Session, params json.RawMessage) (any, error) {
		var p struct {
			Text string `json:"text"`
		}
		if err := bind(params, &p); err != nil {
			return nil, err
		}
		return s.SetReplaceText(p.Text)
	},
	"findNext": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return s.FindNext()
	},
	"findPrevious": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return s.FindPrevious()
	},
	"replaceCurrent": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return replaceResult(s.ReplaceCurrent())
	},
	"replaceAll": func(_ context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		return replaceResult(s.ReplaceAll())
	},
	"save": func(ctx context.Context, s *session.Session, _ json.RawMessage) (any, error) {
		if err := s.Save(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "saved"}, nil
	},
}

func navResult(moved bool, sel session.Selection, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"moved": moved, "selection": sel}, nil
}

func replaceResult(n int, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]int{"replaced": n}, nil
}
