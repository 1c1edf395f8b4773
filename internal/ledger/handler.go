package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/middleware"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	ledger Ledger
}

// NewHandler constructs a ledger handler.
func NewHandler(l Ledger) *Handler {
	return &Handler{ledger: l}
}

type transferRequest struct {
	FromSubaccount string          `json:"from_subaccount"`
	To             account.Account `json:"to"`
	Amount         uint64          `json:"amount"`
	Fee            *uint64         `json:"fee"`
	Memo           []byte          `json:"memo"`
	CreatedAtTime  *uint64         `json:"created_at_time"`
}

type transferFromRequest struct {
	SpenderSubaccount string          `json:"spender_subaccount"`
	From              account.Account `json:"from"`
	To                account.Account `json:"to"`
	Amount            uint64          `json:"amount"`
	Fee               *uint64         `json:"fee"`
	Memo              []byte          `json:"memo"`
	CreatedAtTime     *uint64         `json:"created_at_time"`
}

type approveRequest struct {
	FromSubaccount    string          `json:"from_subaccount"`
	Spender           account.Account `json:"spender"`
	Amount            uint64          `json:"amount"`
	ExpectedAllowance *uint64         `json:"expected_allowance"`
	ExpiresAt         *uint64         `json:"expires_at"`
	Fee               *uint64         `json:"fee"`
	Memo              []byte          `json:"memo"`
	CreatedAtTime     *uint64         `json:"created_at_time"`
}

type mintRequest struct {
	To            account.Account `json:"to"`
	Amount        uint64          `json:"amount"`
	Memo          []byte          `json:"memo"`
	CreatedAtTime *uint64         `json:"created_at_time"`
}

type burnRequest struct {
	FromSubaccount string  `json:"from_subaccount"`
	Amount         uint64  `json:"amount"`
	Memo           []byte  `json:"memo"`
	CreatedAtTime  *uint64 `json:"created_at_time"`
}

// Transfer handles POST /transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sub, err := parseSubaccount(req.FromSubaccount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := nanosToTime(req.CreatedAtTime)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.ledger.Transfer(c.UserContext(), middleware.Caller(c), TransferArgs{
		FromSubaccount: sub,
		To:             req.To,
		Amount:         req.Amount,
		Fee:            req.Fee,
		Memo:           req.Memo,
		CreatedAt:      created,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeReceipt(c, receipt)
}

// TransferFrom handles POST /transfer_from.
func (h *Handler) TransferFrom(c *fiber.Ctx) error {
	var req transferFromRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sub, err := parseSubaccount(req.SpenderSubaccount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := nanosToTime(req.CreatedAtTime)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.ledger.TransferFrom(c.UserContext(), middleware.Caller(c), TransferFromArgs{
		SpenderSubaccount: sub,
		From:              req.From,
		To:                req.To,
		Amount:            req.Amount,
		Fee:               req.Fee,
		Memo:              req.Memo,
		CreatedAt:         created,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeReceipt(c, receipt)
}

// Approve handles POST /approve.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sub, err := parseSubaccount(req.FromSubaccount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := nanosToTime(req.CreatedAtTime)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	expires, err := nanosToTime(req.ExpiresAt)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.ledger.Approve(c.UserContext(), middleware.Caller(c), ApproveArgs{
		FromSubaccount:    sub,
		Spender:           req.Spender,
		Amount:            req.Amount,
		ExpectedAllowance: req.ExpectedAllowance,
		ExpiresAt:         expires,
		Fee:               req.Fee,
		Memo:              req.Memo,
		CreatedAt:         created,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeReceipt(c, receipt)
}

// Mint handles POST /mint. The caller must own the minting account.
func (h *Handler) Mint(c *fiber.Ctx) error {
	var req mintRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := nanosToTime(req.CreatedAtTime)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	meta := h.ledger.Metadata()
	receipt, err := h.ledger.Mint(c.UserContext(), middleware.Caller(c), MintArgs{
		FromSubaccount: meta.MintingAccount.Subaccount,
		To:             req.To,
		Amount:         req.Amount,
		Memo:           req.Memo,
		CreatedAt:      created,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeReceipt(c, receipt)
}

// Burn handles POST /burn.
func (h *Handler) Burn(c *fiber.Ctx) error {
	var req burnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sub, err := parseSubaccount(req.FromSubaccount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := nanosToTime(req.CreatedAtTime)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.ledger.Burn(c.UserContext(), middleware.Caller(c), BurnArgs{
		FromSubaccount: sub,
		Amount:         req.Amount,
		Memo:           req.Memo,
		CreatedAt:      created,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeReceipt(c, receipt)
}

// Metadata handles GET /metadata.
func (h *Handler) Metadata(c *fiber.Ctx) error {
	return c.JSON(h.ledger.Metadata())
}

// Standards handles GET /standards.
func (h *Handler) Standards(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"standards": SupportedStandards()})
}

// TotalSupply handles GET /total_supply.
func (h *Handler) TotalSupply(c *fiber.Ctx) error {
	return c.JSON(h.ledger.Supply())
}

// Balance handles GET /accounts/:account/balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	acc, err := account.ParseAccount(c.Params("account"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{
		"account": acc,
		"balance": h.ledger.BalanceOf(acc),
	})
}

// Allowance handles GET /allowance?owner=&spender=.
func (h *Handler) Allowance(c *fiber.Ctx) error {
	owner, err := account.ParseAccount(c.Query("owner"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "owner: "+err.Error())
	}
	spender, err := account.ParseAccount(c.Query("spender"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "spender: "+err.Error())
	}
	return c.JSON(h.ledger.Allowance(owner, spender))
}

// Transactions handles GET /transactions?start=&length=.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	start, err := queryUint(c, "start", 0)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	length, err := queryUint(c, "length", DefaultMaxQueryLength)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	page, err := h.ledger.GetTransactions(c.UserContext(), start, length)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

// Transaction handles GET /transactions/:index.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	index, err := strconv.ParseUint(c.Params("index"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid index")
	}
	tx, err := h.ledger.GetTransaction(c.UserContext(), index)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tx)
}

// Archives handles GET /archives.
func (h *Handler) Archives(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"archives": h.ledger.Archives()})
}

func writeReceipt(c *fiber.Ctx, r Receipt) error {
	body := fiber.Map{"block_index": r.Index}
	if r.Duplicate {
		body["duplicate_of"] = r.Index
	}
	return c.Status(http.StatusOK).JSON(body)
}

var errorCodes = map[error]string{
	ErrInsufficientFunds:     "InsufficientFunds",
	ErrInsufficientAllowance: "InsufficientAllowance",
	ErrAllowanceChanged:      "AllowanceChanged",
	ErrExpiredApproval:       "Expired",
	ErrOverflow:              "Overflow",
	ErrSupplyCapExceeded:     "SupplyCapExceeded",
	ErrUnauthorized:          "Unauthorized",
	ErrBelowMinimumBurn:      "BadBurn",
	ErrTooOld:                "TooOld",
	ErrTooNew:                "CreatedInFuture",
	ErrLogFull:               "TemporarilyUnavailable",
	ErrNotFound:              "NotFound",
	ErrBadFee:                "BadFee",
	ErrMemoTooLong:           "MemoTooLong",
	ErrSelfApproval:          "SelfApproval",
}

func writeError(c *fiber.Ctx, err error) error {
	var ledgerErr *Error
	switch {
	case errors.As(err, &ledgerErr):
		body := fiber.Map{"error": errorCodes[ledgerErr.Err], "message": ledgerErr.Error()}
		status := http.StatusBadRequest
		switch ledgerErr.Err {
		case ErrInsufficientFunds:
			body["balance"] = ledgerErr.Balance
		case ErrInsufficientAllowance, ErrAllowanceChanged:
			body["allowance"] = ledgerErr.Allowance
		case ErrBadFee:
			body["expected_fee"] = ledgerErr.ExpectedFee
		case ErrBelowMinimumBurn:
			body["min_burn_amount"] = ledgerErr.MinBurn
		case ErrTooNew, ErrExpiredApproval:
			body["ledger_time"] = uint64(ledgerErr.LedgerTime.UnixNano())
		case ErrUnauthorized:
			status = http.StatusForbidden
		case ErrNotFound:
			status = http.StatusNotFound
		case ErrLogFull:
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(body)
	case errors.Is(err, ErrStopped):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fiber.NewError(http.StatusGatewayTimeout, "request not processed")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}

func parseSubaccount(text string) (*account.Subaccount, error) {
	if text == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(text)
	if err != nil || len(raw) != account.SubaccountLength {
		return nil, fmt.Errorf("subaccount must be %d hex-encoded bytes", account.SubaccountLength)
	}
	var sub account.Subaccount
	copy(sub[:], raw)
	return &sub, nil
}

func nanosToTime(ns *uint64) (*time.Time, error) {
	if ns == nil {
		return nil, nil
	}
	if *ns > math.MaxInt64 {
		return nil, fmt.Errorf("timestamp %d out of range", *ns)
	}
	t := time.Unix(0, int64(*ns)).UTC()
	return &t, nil
}

func queryUint(c *fiber.Ctx, name string, def uint64) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
