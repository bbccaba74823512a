package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	nativecommon "stakefarm/native/common"
	"stakefarm/native/farming"
)

type farmMutateParams struct {
	User   string `json:"user"`
	Amount string `json:"amount,omitempty"`
	Now    uint64 `json:"now"`
}

type farmRefreshParams struct {
	Now uint64 `json:"now"`
}

type farmQueryParams struct {
	User string `json:"user"`
	Now  uint64 `json:"now,omitempty"`
}

type farmMutateResult struct {
	Pending string `json:"pending"`
}

type farmPayoutResult struct {
	Payout string `json:"payout"`
}

type farmPoolResult struct {
	TotalStaked       string `json:"totalStaked"`
	AccIndex          string `json:"accIndex"`
	CurrentPeriod     uint64 `json:"currentPeriod"`
	PeriodEndTick     uint64 `json:"periodEndTick"`
	LastUpdateTick    uint64 `json:"lastUpdateTick"`
	ActiveStakingRate string `json:"activeStakingRate"`
	ActiveOthersRate  string `json:"activeOthersRate"`
}

type farmPositionResult struct {
	StakedAmount string `json:"stakedAmount"`
	RewardDebt   string `json:"rewardDebt"`
}

type farmPendingResult struct {
	Pending string `json:"pending"`
}

func decodeAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes")
	}
	copy(addr[:], decoded)
	return addr, nil
}

func decodeAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

// engineErrorCode maps engine failures onto JSON-RPC error codes. Validation
// errors are the caller's fault; everything else is a server-side condition.
func engineErrorCode(err error) (int, int) {
	switch {
	case errors.Is(err, farming.ErrInvalidAmount),
		errors.Is(err, farming.ErrInsufficientStake),
		errors.Is(err, farming.ErrNoStake):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, nativecommon.ErrReentrancy),
		errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusConflict, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, method string, err error) {
	s.metrics.ObserveRequest(method, "error")
	status, code := engineErrorCode(err)
	writeError(w, status, req.ID, code, err.Error(), nil)
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	const method = "farm_deposit"
	var params farmMutateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user", err.Error())
		return
	}
	amount, err := decodeAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	pending, err := s.engine.Deposit(user, amount, params.Now)
	if err != nil {
		s.writeEngineError(w, req, method, err)
		return
	}
	s.metrics.ObserveRequest(method, "ok")
	s.metrics.ObserveDeposit()
	s.metrics.SetTotalStaked(s.engine.TotalStaked())
	writeResult(w, req.ID, farmMutateResult{Pending: pending.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	const method = "farm_withdraw"
	var params farmMutateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user", err.Error())
		return
	}
	amount, err := decodeAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	pending, err := s.engine.Withdraw(user, amount, params.Now)
	if err != nil {
		s.writeEngineError(w, req, method, err)
		return
	}
	s.metrics.ObserveRequest(method, "ok")
	s.metrics.ObserveWithdrawal()
	s.metrics.SetTotalStaked(s.engine.TotalStaked())
	writeResult(w, req.ID, farmMutateResult{Pending: pending.String()})
}

func (s *Server) handleWithdrawAll(w http.ResponseWriter, req *RPCRequest) {
	const method = "farm_withdrawAll"
	var params farmQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user", err.Error())
		return
	}
	payout, err := s.engine.WithdrawAll(user, params.Now)
	if err != nil {
		s.writeEngineError(w, req, method, err)
		return
	}
	s.metrics.ObserveRequest(method, "ok")
	s.metrics.ObserveWithdrawal()
	s.metrics.SetTotalStaked(s.engine.TotalStaked())
	writeResult(w, req.ID, farmPayoutResult{Payout: payout.String()})
}

func (s *Server) handleCompound(w http.ResponseWriter, req *RPCRequest) {
	const method = "farm_compound"
	var params farmQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user", err.Error())
		return
	}
	pending, err := s.engine.HarvestAndCompound(user, params.Now)
	if err != nil {
		s.writeEngineError(w, req, method, err)
		return
	}
	s.metrics.ObserveRequest(method, "ok")
	s.metrics.ObserveCompound()
	s.metrics.SetTotalStaked(s.engine.TotalStaked())
	writeResult(w, req.ID, farmMutateResult{Pending: pending.String()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, req *RPCRequest) {
	const method = "farm_refresh"
	var params farmRefreshParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if err := s.engine.Refresh(params.Now); err != nil {
		s.writeEngineError(w, req, method, err)
		return
	}
	s.metrics.ObserveRequest(method, "ok")
	writeResult(w, req.ID, s.poolResult())
}

func (s *Server) poolResult() farmPoolResult {
	pool := s.engine.Pool()
	return farmPoolResult{
		TotalStaked:       pool.TotalStaked.String(),
		AccIndex:          pool.AccIndex.String(),
		CurrentPeriod:     pool.CurrentPeriod,
		PeriodEndTick:     pool.PeriodEndTick,
		LastUpdateTick:    pool.LastUpdateTick,
		ActiveStakingRate: pool.ActiveStakingRate.String(),
		ActiveOthersRate:  pool.ActiveOthersRate.String(),
	}
}

func (s *Server) handlePool(w http.ResponseWriter, req *RPCRequest) {
	s.metrics.ObserveRequest("farm_pool", "ok")
	writeResult(w, req.ID, s.poolResult())
}

func (s *Server) handlePosition(w http.ResponseWriter, req *RPCRequest) {
	var params farmQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user", err.Error())
		return
	}
	pos := s.engine.Position(user)
	s.metrics.ObserveRequest("farm_position", "ok")
	writeResult(w, req.ID, farmPositionResult{
		StakedAmount: pos.StakedAmount.String(),
		RewardDebt:   pos.RewardDebt.String(),
	})
}

func (s *Server) handlePendingReward(w http.ResponseWriter, req *RPCRequest) {
	var params farmQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := decodeAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user", err.Error())
		return
	}
	pending := s.engine.PendingReward(user, params.Now)
	s.metrics.ObserveRequest("farm_pendingReward", "ok")
	writeResult(w, req.ID, farmPendingResult{Pending: pending.String()})
}
