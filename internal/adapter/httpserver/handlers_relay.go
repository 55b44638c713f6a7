package httpserver

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/aarelay/internal/app"
	"github.com/pscheid92/aarelay/internal/domain"
	apperrors "github.com/pscheid92/aarelay/internal/platform/errors"
)

const greeting = "Hello World!"

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type getAddressRequest struct {
	Signature string `json:"signature"`
}

type getAddressResponse struct {
	Address string `json:"address"`
}

type sendTxRequest struct {
	Signature string          `json:"signature"`
	To        string          `json:"to"`
	Value     json.RawMessage `json:"value"`
	Data      string          `json:"data"`
}

type sendTxResponse struct {
	TxHash     string `json:"txHash"`
	UserOpHash string `json:"userOpHash"`
}

type balanceResponse struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	BalanceEther string `json:"balanceEther"`
}

type userOpResponse struct {
	UserOpHash    string  `json:"userOpHash"`
	Sender        string  `json:"sender"`
	Owner         string  `json:"owner"`
	Target        string  `json:"target"`
	Value         string  `json:"value"`
	CallData      string  `json:"callData"`
	Status        string  `json:"status"`
	TxHash        *string `json:"txHash,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func (s *Server) registerRelayRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.POST("/get-address", s.handleGetAddress, rateLimiter)
	s.echo.POST("/send-tx", s.handleSendTx, rateLimiter)
	s.echo.GET("/get-balance", s.handleGetBalance)
	s.echo.GET("/user-ops/:hash", s.handleGetUserOp)
}

func (s *Server) handleGreeting(c echo.Context) error {
	if err := c.String(http.StatusOK, greeting); err != nil {
		return fmt.Errorf("failed to write greeting: %w", err)
	}
	return nil
}

func (s *Server) handleGetAddress(c echo.Context) error {
	var req getAddressRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	addr, err := s.app.GetAddress(c.Request().Context(), req.Signature)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, getAddressResponse{Address: addr.Hex()}); err != nil {
		return fmt.Errorf("failed to write address response: %w", err)
	}
	return nil
}

func (s *Server) handleSendTx(c echo.Context) error {
	var req sendTxRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	transfer, err := parseTransfer(req)
	if err != nil {
		return err
	}

	result, err := s.app.SendTransaction(c.Request().Context(), transfer)
	if err != nil {
		return err
	}

	resp := sendTxResponse{
		TxHash:     result.TxHash.Hex(),
		UserOpHash: result.UserOpHash.Hex(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write send-tx response: %w", err)
	}
	return nil
}

func (s *Server) handleGetBalance(c echo.Context) error {
	raw := c.QueryParam("address")
	if !common.IsHexAddress(raw) {
		return apperrors.ValidationError("address must be a hex address").WithField("address", raw)
	}

	balance, err := s.app.GetBalance(c.Request().Context(), common.HexToAddress(raw))
	if err != nil {
		return err
	}

	resp := balanceResponse{
		Address:      balance.Address.Hex(),
		Balance:      balance.Wei.String(),
		BalanceEther: balance.Ether(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write balance response: %w", err)
	}
	return nil
}

func (s *Server) handleGetUserOp(c echo.Context) error {
	hash, err := parseHash(c.Param("hash"))
	if err != nil {
		return err
	}

	rec, err := s.app.GetUserOperation(c.Request().Context(), hash)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, toUserOpResponse(rec)); err != nil {
		return fmt.Errorf("failed to write user operation response: %w", err)
	}
	return nil
}

func parseTransfer(req sendTxRequest) (app.TransferRequest, error) {
	if !common.IsHexAddress(req.To) {
		return app.TransferRequest{}, apperrors.ValidationError("to must be a hex address").WithField("to", req.To)
	}

	value, err := parseValue(req.Value)
	if err != nil {
		return app.TransferRequest{}, err
	}

	data, err := parseData(req.Data)
	if err != nil {
		return app.TransferRequest{}, err
	}

	return app.TransferRequest{
		Signature: req.Signature,
		To:        common.HexToAddress(req.To),
		Value:     value,
		Data:      data,
	}, nil
}

// parseValue accepts a JSON number or a decimal/0x-hex string. Absent or empty means zero.
func parseValue(raw json.RawMessage) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, apperrors.ValidationError("value must be a wei amount")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return new(big.Int), nil
		}
	}

	value, ok := parseQuantity(text)
	if !ok {
		return nil, apperrors.ValidationError("value must be a wei amount").WithField("value", text)
	}
	if value.Sign() < 0 {
		return nil, apperrors.ValidationError("value must not be negative").WithField("value", text)
	}
	if value.Cmp(maxUint256) > 0 {
		return nil, apperrors.ValidationError("value exceeds uint256").WithField("value", text)
	}
	return value, nil
}

// parseQuantity reads a base-10 integer, or base-16 when prefixed with 0x.
// Leading zeros stay decimal and digit separators are rejected.
func parseQuantity(text string) (*big.Int, bool) {
	if digits, ok := cutHexPrefix(text); ok {
		if digits == "" || strings.ContainsAny(digits, "+-") {
			return nil, false
		}
		return new(big.Int).SetString(digits, 16)
	}
	return new(big.Int).SetString(text, 10)
}

func cutHexPrefix(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return rest, true
	}
	return strings.CutPrefix(s, "0X")
}

// parseData accepts 0x-prefixed calldata. A bare hex string is read as if prefixed.
func parseData(s string) ([]byte, error) {
	if s == "" || s == "0x" || s == "0X" {
		return nil, nil
	}
	if !has0xPrefix(s) {
		s = "0x" + s
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, apperrors.ValidationError("data must be hex encoded")
	}
	return data, nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func parseHash(s string) (common.Hash, error) {
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, apperrors.ValidationError("hash must be 0x followed by 64 hex characters").WithField("hash", s)
	}
	return common.BytesToHash(raw), nil
}

func toUserOpResponse(rec *domain.UserOpRecord) userOpResponse {
	resp := userOpResponse{
		UserOpHash:    rec.UserOpHash.Hex(),
		Sender:        rec.Sender.Hex(),
		Owner:         rec.Owner.Hex(),
		Target:        rec.Target.Hex(),
		Value:         "0",
		CallData:      hexutil.Encode(rec.CallData),
		Status:        string(rec.Status),
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Value != nil {
		resp.Value = rec.Value.String()
	}
	if rec.TxHash != nil {
		txHash := rec.TxHash.Hex()
		resp.TxHash = &txHash
	}
	return resp
}
