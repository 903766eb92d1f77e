package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ecorelease/rpc"
)

type rpcClient struct {
	endpoint string
	token    string
	http     *http.Client
}

func newRPCClient(endpoint, token string) *rpcClient {
	return &rpcClient{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *rpc.RPCError   `json:"error"`
}

// call performs a JSON-RPC request. RPC-level failures come back as
// *rpc.RPCError.
func (c *rpcClient) call(method string, params ...interface{}) (json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(rpc.RPCRequest{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var reply rpcReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	return reply.Result, nil
}

func describeError(err error) string {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Data != nil {
			return fmt.Sprintf("rpc error %d: %s (%v)", rpcErr.Code, rpcErr.Message, rpcErr.Data)
		}
		return fmt.Sprintf("rpc error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	return err.Error()
}
