package solana

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 error codes. The -320xx range follows the Solana validator.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeTransactionFailed    = -32002
	CodeSignatureFailure     = -32003
	CodeTransactionNotFound  = -32004
	CodeAirdropLimitExceeded = -32005
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error. Data is set when a transaction failed.
type RPCError struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    *TransactionFail `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// TransactionFail describes a rejected transaction.
// ProgramError is the escrow program error code when the failure came from it.
type TransactionFail struct {
	Err          string   `json:"err"`
	Instruction  int      `json:"instruction"`
	ProgramError *uint32  `json:"programError,omitempty"`
	Logs         []string `json:"logs"`
}

// RPCContext is the context object wrapping slot-dependent results.
type RPCContext struct {
	Slot int64 `json:"slot"`
}

// AccountInfoResult is the getAccountInfo result.
type AccountInfoResult struct {
	Context RPCContext        `json:"context"`
	Value   *AccountInfoValue `json:"value"`
}

// AccountInfoValue is one account in base64 encoding.
type AccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, "base64"]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
	Space      int      `json:"space"`
}

// BalanceResult is the getBalance result.
type BalanceResult struct {
	Context RPCContext `json:"context"`
	Value   uint64     `json:"value"`
}

// TokenBalanceResult is the getTokenAccountBalance result.
type TokenBalanceResult struct {
	Context RPCContext  `json:"context"`
	Value   TokenAmount `json:"value"`
}

// TokenAmount is a raw token amount with its mint decimals.
type TokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// TransactionResult is the getTransaction result.
type TransactionResult struct {
	Slot        int64                  `json:"slot"`
	BlockTime   *int64                 `json:"blockTime"`
	Meta        *TransactionMetaResult `json:"meta"`
	Transaction *TransactionBody       `json:"transaction"`
}

// TransactionMetaResult carries the execution outcome.
type TransactionMetaResult struct {
	Err         interface{} `json:"err"`
	LogMessages []string    `json:"logMessages"`
}

// TransactionBody is the json-encoded transaction.
type TransactionBody struct {
	Signatures []string                  `json:"signatures"`
	Message    *TransactionMessageResult `json:"message"`
}

// TransactionMessageResult lists the accounts a transaction references.
type TransactionMessageResult struct {
	AccountKeys []string `json:"accountKeys"`
}

// SignatureResult is one getSignaturesForAddress item.
type SignatureResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// LogsNotification is the logsSubscribe push message.
type LogsNotification struct {
	JSONRPC string                  `json:"jsonrpc"`
	Method  string                  `json:"method"`
	Params  *LogsNotificationParams `json:"params"`
}

// LogsNotificationParams routes a notification to its subscription.
type LogsNotificationParams struct {
	Subscription int64      `json:"subscription"`
	Result       LogsResult `json:"result"`
}

// LogsResult is the notification payload.
type LogsResult struct {
	Context *RPCContext `json:"context"`
	Value   LogsValue   `json:"value"`
}

// LogsValue is one transaction's logs.
type LogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
