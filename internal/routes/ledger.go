package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/icrc_ledger/internal/ledger"
)

// RegisterLedgerRoutes wires token endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Post("/transfer", h.Transfer)
	r.Post("/transfer_from", h.TransferFrom)
	r.Post("/approve", h.Approve)
	r.Post("/mint", h.Mint)
	r.Post("/burn", h.Burn)

	r.Get("/metadata", h.Metadata)
	r.Get("/standards", h.Standards)
	r.Get("/total_supply", h.TotalSupply)
	r.Get("/accounts/:account/balance", h.Balance)
	r.Get("/allowance", h.Allowance)
	r.Get("/transactions", h.Transactions)
	r.Get("/transactions/:index", h.Transaction)
	r.Get("/archives", h.Archives)
}
