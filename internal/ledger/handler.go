package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trainslot/internal/api"
	"trainslot/internal/auth"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type CreatePackageRequest struct {
	Name          string `json:"name" binding:"required"`
	SessionsTotal int    `json:"sessions_total" binding:"required,gte=1"`
	PriceCents    int64  `json:"price_cents" binding:"required,gte=0"`
	ValidityDays  int    `json:"validity_days" binding:"required,gte=1"`
}

// CreatePackage godoc
// @Summary      Create a session package
// @Description  Trainer defines a prepaid package of sessions.
// @Tags         packages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreatePackageRequest  true  "Package data"
// @Success      201      {object}  Package
// @Failure      400      {object}  api.ErrorResponse
// @Router       /packages [post]
func (h *Handler) CreatePackage(c *gin.Context) {
	trainerID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	var req CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	pkg, err := h.repo.CreatePackage(c.Request.Context(), trainerID, req.Name, req.SessionsTotal, req.PriceCents, req.ValidityDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create package"})
		return
	}

	c.JSON(http.StatusCreated, pkg)
}

// ListTrainerPackages godoc
// @Summary      List a trainer's packages
// @Tags         packages
// @Security     BearerAuth
// @Produce      json
// @Param        trainerID  path     int  true  "Trainer ID"
// @Success      200        {array}  Package
// @Router       /trainers/{trainerID}/packages [get]
func (h *Handler) ListTrainerPackages(c *gin.Context) {
	trainerID, err := strconv.Atoi(c.Param("trainerID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid trainer ID"})
		return
	}

	packages, err := h.repo.ListPackagesByTrainer(c.Request.Context(), trainerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, packages)
}

// PurchasePackage godoc
// @Summary      Purchase a package
// @Description  Creates a credit pool of sessions_total credits expiring after the package's validity period.
// @Tags         packages
// @Security     BearerAuth
// @Produce      json
// @Param        packageID  path      int  true  "Package ID"
// @Success      201        {object}  PackagePurchase
// @Failure      404        {object}  api.ErrorResponse
// @Router       /packages/{packageID}/purchase [post]
func (h *Handler) PurchasePackage(c *gin.Context) {
	customerID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	packageID, err := strconv.Atoi(c.Param("packageID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid package ID"})
		return
	}

	purchase, err := h.repo.CreatePurchase(c.Request.Context(), customerID, packageID)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Package not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to purchase package"})
		return
	}

	c.JSON(http.StatusCreated, purchase)
}

// ListMyPurchases godoc
// @Summary      List the caller's package purchases
// @Tags         packages
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  PackagePurchase
// @Router       /purchases [get]
func (h *Handler) ListMyPurchases(c *gin.Context) {
	customerID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	purchases, err := h.repo.ListPurchasesByCustomer(c.Request.Context(), customerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, purchases)
}
