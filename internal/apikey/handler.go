package apikey

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes API key management endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an API key HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Expiry      string   `json:"expiry"`
}

type rolloverRequest struct {
	ExpiredKeyID string `json:"expired_key_id"`
	Expiry       string `json:"expiry"`
}

type issuedResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	APIKey      string   `json:"api_key"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
}

type listItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status"`
	ExpiresAt   string   `json:"expires_at"`
	LastUsedAt  string   `json:"last_used_at,omitempty"`
}

// Create issues a new API key. The plaintext secret appears in this response
// and nowhere else.
func (h *Handler) Create(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.service.Issue(c.UserContext(), IssueInput{
		OwnerID:     ownerID,
		Name:        req.Name,
		Permissions: req.Permissions,
		Expiry:      req.Expiry,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toIssuedResponse(issued))
}

// Rollover issues a replacement for an expired key with the same permissions.
func (h *Handler) Rollover(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	var req rolloverRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.service.Rollover(c.UserContext(), ownerID, req.ExpiredKeyID, req.Expiry)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toIssuedResponse(issued))
}

// List returns the owner's keys without secrets.
func (h *Handler) List(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	keys, err := h.service.List(c.UserContext(), ownerID)
	if err != nil {
		return mapError(err)
	}
	now := time.Now().UTC()
	items := make([]listItem, 0, len(keys))
	for _, key := range keys {
		item := listItem{
			ID:          key.ID,
			Name:        key.Name,
			Prefix:      key.Prefix,
			Permissions: permissionNames(key.Permissions),
			Status:      key.Status(now),
			ExpiresAt:   key.ExpiresAt.Format(time.RFC3339),
		}
		if key.LastUsedAt != nil {
			item.LastUsedAt = key.LastUsedAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return c.Status(http.StatusOK).JSON(items)
}

// Revoke deactivates a key; repeated revocations succeed quietly.
func (h *Handler) Revoke(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	keyID := c.Params("keyId")
	if err := h.service.Revoke(c.UserContext(), ownerID, keyID); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "api key revoked"})
}

func toIssuedResponse(issued IssuedKey) issuedResponse {
	return issuedResponse{
		ID:          issued.ID,
		Name:        issued.Name,
		APIKey:      issued.Secret,
		Permissions: permissionNames(issued.Permissions),
		ExpiresAt:   issued.ExpiresAt.Format(time.RFC3339),
	}
}

func permissionNames(perms []Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return names
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrTooManyActiveKeys), errors.Is(err, ErrNotExpired):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidPermission), errors.Is(err, ErrInvalidExpiry):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
