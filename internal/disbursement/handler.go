package disbursement

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bytestrike/faucet_bot/internal/ledger"
)

// Handler exposes the disbursement endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a disbursement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestBody struct {
	WalletAddress string `json:"walletAddress"`
}

// Request funds the wallet named in the body.
func (h *Handler) Request(c *fiber.Ctx) error {
	var req requestBody
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, ErrInvalidAddress.Error())
	}

	res, err := h.service.Request(c.UserContext(), Input{
		WalletAddress: req.WalletAddress,
		IPAddress:     c.IP(),
	})
	if err != nil {
		var pending *PendingRequestError
		var reason *ReasonError
		switch {
		case errors.As(err, &pending):
			return c.Status(http.StatusConflict).JSON(fiber.Map{
				"error":   pending.Error(),
				"request": pending.Request,
			})
		case errors.Is(err, ErrInvalidAddress):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRateLimited) && errors.As(err, &reason):
			return fiber.NewError(http.StatusTooManyRequests, reason.Reason)
		case errors.Is(err, ErrAlreadyFunded) && errors.As(err, &reason):
			return fiber.NewError(http.StatusBadRequest, reason.Reason)
		case errors.Is(err, ErrDistributionFailed) && errors.As(err, &reason):
			return fiber.NewError(http.StatusInternalServerError, reason.Reason)
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": res.Message,
		"txHash":  res.TxHash,
		"amount":  res.Amount,
	})
}

// List returns every recorded request.
func (h *Handler) List(c *fiber.Ctx) error {
	requests, err := h.service.All(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(requests)
}

// Get returns the most recent request for the address path parameter.
func (h *Handler) Get(c *fiber.Ctx) error {
	request, err := h.service.Latest(c.UserContext(), c.Params("address"))
	if err != nil {
		if errors.Is(err, ledger.ErrRequestNotFound) {
			return fiber.NewError(http.StatusNotFound, "No request found for this address")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(request)
}
