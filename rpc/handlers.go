package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ecorelease/core"
	"ecorelease/indexer"
	"ecorelease/observability/logging"
)

type invokeParams struct {
	Height *int64          `json:"height"`
	Msg    json.RawMessage `json:"msg"`
}

type queryParams struct {
	Msg json.RawMessage `json:"msg"`
}

type eventsParams struct {
	Action string `json:"action"`
	Limit  int    `json:"limit"`
}

// HeightResult is returned by eco_height.
type HeightResult struct {
	Height int64 `json:"height"`
}

// EventResult is a single indexed event returned by eco_events.
type EventResult struct {
	Height     int64             `json:"height"`
	Receipt    string            `json:"receipt"`
	Type       string            `json:"type"`
	Action     string            `json:"action"`
	Signer     string            `json:"signer"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"createdAt"`
}

type invokeFunc func(ctx context.Context, inv core.Invocation) (*core.Result, error)

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request, req *RPCRequest, invoke invokeFunc) bool {
	signer, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Warn("rpc: authentication failed",
			slog.String("method", req.Method),
			logging.MaskField("authorization", r.Header.Get("Authorization")),
			slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", err.Error())
		return true
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single params object", nil)
		return true
	}
	var params invokeParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return true
	}
	if params.Height == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "height is required", nil)
		return true
	}
	if len(params.Msg) == 0 || string(params.Msg) == "null" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "msg is required", nil)
		return true
	}

	res, err := invoke(r.Context(), core.Invocation{Signer: signer, Height: *params.Height, Msg: params.Msg})
	if err != nil {
		s.writeHostError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, res)
	return false
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single params object", nil)
		return true
	}
	var params queryParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil || len(params.Msg) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "msg is required", nil)
		return true
	}
	out, err := s.host.Query(r.Context(), params.Msg)
	if err != nil {
		s.writeHostError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, json.RawMessage(out))
	return false
}

func (s *Server) handleHeight(w http.ResponseWriter, req *RPCRequest) bool {
	height, err := s.host.Height()
	if err != nil {
		s.writeHostError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, HeightResult{Height: height})
	return false
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event index disabled", nil)
		return true
	}
	var params eventsParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
			return true
		}
	}
	rows, err := s.events.List(r.Context(), indexer.Filter{Action: strings.TrimSpace(params.Action), Limit: params.Limit})
	if err != nil {
		s.writeHostError(w, req.ID, err)
		return true
	}
	out := make([]EventResult, 0, len(rows))
	for _, row := range rows {
		attrs, err := row.Attrs()
		if err != nil {
			s.writeHostError(w, req.ID, err)
			return true
		}
		res := EventResult{
			Height:     row.Height,
			Receipt:    row.Receipt,
			Type:       row.Type,
			Action:     row.Action,
			Signer:     row.Signer,
			Attributes: make(map[string]string, len(attrs)),
			CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
		}
		for _, a := range attrs {
			res.Attributes[a.Key] = a.Value
		}
		out = append(out, res)
	}
	writeResult(w, req.ID, out)
	return false
}
