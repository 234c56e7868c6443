package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"harvestpay/core/claimable"
)

// JSON-RPC error codes the ledger node assigns to lookup failures.
const (
	rpcCodeNotFound = -32042
)

// RPCError is a structured JSON-RPC failure from the ledger node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

// Client implements Gateway against the ledger node's JSON-RPC endpoint.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

// NewClient builds a gateway client for the given node URL. A zero timeout
// falls back to ten seconds.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// GetAccount fetches the current account snapshot, including the sequence
// number consumed by the next signed transaction.
func (c *Client) GetAccount(ctx context.Context, address string) (*AccountSnapshot, error) {
	var result AccountSnapshot
	params := []interface{}{map[string]string{"address": address}}
	if err := c.call(ctx, "ledger_getAccount", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetFeeStats fetches the network's current base fee per operation.
func (c *Client) GetFeeStats(ctx context.Context) (*FeeStats, error) {
	var result FeeStats
	if err := c.call(ctx, "ledger_feeStats", []interface{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitTransaction submits a signed envelope and blocks until the node
// reports the applied result. Rejections still produce a SubmitResult whose
// ResultCode names the failure; transport errors surface as Go errors.
func (c *Client) SubmitTransaction(ctx context.Context, env *SignedEnvelope) (*SubmitResult, error) {
	if env == nil {
		return nil, errors.New("ledger: nil envelope")
	}
	var result SubmitResult
	params := []interface{}{map[string]interface{}{"envelope": env}}
	if err := c.call(ctx, "ledger_submitTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction reports the outcome of a previously submitted transaction.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*TransactionOutcome, error) {
	var result TransactionOutcome
	params := []interface{}{map[string]string{"hash": hash}}
	if err := c.call(ctx, "ledger_getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetClaimableBalances lists balances naming the address as a claimant, in
// whatever order the node returns them. Claimed balances stay listed with
// their terminal status.
func (c *Client) GetClaimableBalances(ctx context.Context, claimant string) ([]claimable.Balance, error) {
	var result []claimable.Balance
	params := []interface{}{map[string]string{"claimant": claimant}}
	if err := c.call(ctx, "ledger_claimableBalances", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	bodyStruct := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ledger rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(body))
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcCodeNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, rpcResp.Error.Message)
		}
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("ledger rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
